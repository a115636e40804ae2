package approval

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"podpublish/internal/logging"
)

var confirmationPage = template.Must(template.New("confirm").Parse(`<!DOCTYPE html>
<html lang="zh-Hant">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>選擇確認</title>
</head>
<body style="font-family: -apple-system, 'Segoe UI', sans-serif; background: #ecfdf5; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0;">
<div style="background: #fff; border-radius: 16px; padding: 40px; max-width: 480px; text-align: center;">
<div style="font-size: 56px;">✅</div>
<h1 style="color: #065f46;">選擇成功！</h1>
<p style="color: #047857; font-size: 18px;">您已選擇標題 #{{.Number}}</p>
<p style="color: #374151;">{{.Title}}</p>
<p style="color: #6b7280; font-size: 14px;">系統將自動完成後續上傳作業，您可以關閉此頁面。</p>
</div>
<script>setTimeout(function () { window.close(); }, 5000);</script>
</body>
</html>
`))

func (r *Rendezvous) routes(rd *round) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/select", func(w http.ResponseWriter, req *http.Request) {
		r.handleSelect(w, req, rd)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		r.handleHealth(w, req, rd)
	})
	return mux
}

func (r *Rendezvous) handleSelect(w http.ResponseWriter, req *http.Request, rd *round) {
	if req.Method != http.MethodGet {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	index, err := strconv.Atoi(strings.TrimSpace(req.URL.Query().Get("index")))
	if err != nil {
		writeText(w, http.StatusBadRequest, "無效的標題索引")
		return
	}
	if index < 0 || index >= len(rd.candidates) {
		writeText(w, http.StatusBadRequest, "標題索引超出範圍")
		return
	}
	if !rd.choose(index) {
		writeText(w, http.StatusConflict, "標題已經選定")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	data := struct {
		Number int
		Title  string
	}{Number: index + 1, Title: rd.candidates[index]}
	if err := confirmationPage.Execute(w, data); err != nil {
		r.logger.Debug("write confirmation page", logging.Error(err))
	}
}

func (r *Rendezvous) handleHealth(w http.ResponseWriter, req *http.Request, rd *round) {
	if req.Method != http.MethodGet {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"port":     rd.port,
		"resolved": rd.isResolved(),
	})
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
