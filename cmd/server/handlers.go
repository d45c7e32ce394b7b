package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"instantbuy/internal/account"
	"instantbuy/internal/classify"
	"instantbuy/internal/instant"
	"instantbuy/internal/quote"
	"instantbuy/internal/source"
)

// widget is the part of instant.App the HTTP API drives.
type widget interface {
	Snapshot() instant.State
	Select(asset source.Asset, amount decimal.Decimal) (quote.Request, bool)
	RefreshNow() bool
	SetOrderInProgress(v bool)
	CheckBalance() error
	ReportSignatureRejected()
}

type selectionBody struct {
	Asset    string          `json:"asset"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Decimals *int32          `json:"decimals"`
	Amount   decimal.Decimal `json:"amount"`
}

type orderBody struct {
	InProgress bool `json:"in_progress"`
}

type balanceResponse struct {
	Affordable bool   `json:"affordable"`
	Message    string `json:"message,omitempty"`
}

func newAPI(app widget, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Snapshot())
	})
	mux.HandleFunc("POST /api/selection", func(w http.ResponseWriter, r *http.Request) {
		handleSelection(w, r, app)
	})
	mux.HandleFunc("POST /api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !app.RefreshNow() {
			http.Error(w, "nothing selected to quote", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusAccepted, app.Snapshot())
	})
	mux.HandleFunc("POST /api/order", func(w http.ResponseWriter, r *http.Request) {
		var b orderBody
		if err := decodeBody(r, &b); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		app.SetOrderInProgress(b.InProgress)
		writeJSON(w, http.StatusOK, app.Snapshot())
	})
	mux.HandleFunc("POST /api/balance-check", func(w http.ResponseWriter, r *http.Request) {
		err := app.CheckBalance()
		if err != nil && !errors.Is(err, account.ErrInsufficientBalance) {
			log.Error().Err(err).Msg("balance check failed")
			http.Error(w, "balance check failed", http.StatusInternalServerError)
			return
		}
		resp := balanceResponse{Affordable: err == nil}
		if err != nil {
			resp.Message = classify.Classify(app.Snapshot().Selection.Asset, err).Message
		}
		writeJSON(w, http.StatusOK, resp)
	})
	mux.HandleFunc("POST /api/signature-rejected", func(w http.ResponseWriter, r *http.Request) {
		app.ReportSignatureRejected()
		writeJSON(w, http.StatusOK, app.Snapshot())
	})
	return withJSONHeaders(withGzip(recoverPanic(log, limitBody(mux))))
}

func handleSelection(w http.ResponseWriter, r *http.Request, app widget) {
	var b selectionBody
	if err := decodeBody(r, &b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	b.Asset = strings.TrimSpace(b.Asset)
	if b.Asset == "" {
		http.Error(w, "asset cannot be empty", http.StatusBadRequest)
		return
	}
	if !b.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	asset := source.Asset{ID: b.Asset, Symbol: b.Symbol, Name: b.Name, Decimals: 18}
	if b.Decimals != nil {
		if *b.Decimals < 0 || *b.Decimals > 36 {
			http.Error(w, "decimals out of range", http.StatusBadRequest)
			return
		}
		asset.Decimals = *b.Decimals
	}
	req, ok := app.Select(asset, b.Amount)
	if !ok {
		http.Error(w, "quote not issued", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		// Basic CORS for browser usage; adjust as needed.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 64 << 10
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
