package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/showrun-ai/showrun/internal/gmail"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/sheets"
)

// RegisterToolRoutes exposes the capability layer over plain HTTP. Nodes
// of a published graph call these routes at run time; the engine itself
// never holds Google credentials.
func RegisterToolRoutes(mux *http.ServeMux, sheetsSvc sheets.Service, gmailSvc gmail.Service) {
	mux.HandleFunc("/tools/sheets/read", toolRoute(func(r *http.Request) (interface{}, error) {
		var req struct {
			Owner         string `json:"owner"`
			SpreadsheetID string `json:"spreadsheet_id"`
			Range         string `json:"range"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return sheetsSvc.Read(r.Context(), req.Owner, req.SpreadsheetID, req.Range)
	}))

	mux.HandleFunc("/tools/sheets/write", toolRoute(func(r *http.Request) (interface{}, error) {
		var req struct {
			Owner         string     `json:"owner"`
			SpreadsheetID string     `json:"spreadsheet_id"`
			Range         string     `json:"range"`
			Values        [][]string `json:"values"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return sheetsSvc.Write(r.Context(), req.Owner, req.SpreadsheetID, req.Range, req.Values)
	}))

	mux.HandleFunc("/tools/sheets/append", toolRoute(func(r *http.Request) (interface{}, error) {
		var req struct {
			Owner         string     `json:"owner"`
			SpreadsheetID string     `json:"spreadsheet_id"`
			Range         string     `json:"range"`
			Values        [][]string `json:"values"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if req.Range == "" {
			req.Range = "A1"
		}
		return sheetsSvc.Append(r.Context(), req.Owner, req.SpreadsheetID, req.Range, req.Values)
	}))

	mux.HandleFunc("/tools/sheets/clear", toolRoute(func(r *http.Request) (interface{}, error) {
		var req struct {
			Owner         string `json:"owner"`
			SpreadsheetID string `json:"spreadsheet_id"`
			Range         string `json:"range"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return sheetsSvc.Clear(r.Context(), req.Owner, req.SpreadsheetID, req.Range)
	}))

	mux.HandleFunc("/tools/sheets/create", toolRoute(func(r *http.Request) (interface{}, error) {
		var req struct {
			Owner  string   `json:"owner"`
			Title  string   `json:"title"`
			Sheets []string `json:"sheets"`
		}
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		return sheetsSvc.Create(r.Context(), req.Owner, req.Title, req.Sheets)
	}))

	mux.HandleFunc("/tools/gmail/draft", toolRoute(func(r *http.Request) (interface{}, error) {
		owner, msg, err := decodeMail(r)
		if err != nil {
			return nil, err
		}
		return gmailSvc.CreateDraft(r.Context(), owner, msg)
	}))

	mux.HandleFunc("/tools/gmail/send", toolRoute(func(r *http.Request) (interface{}, error) {
		owner, msg, err := decodeMail(r)
		if err != nil {
			return nil, err
		}
		return gmailSvc.Send(r.Context(), owner, msg)
	}))
}

func decodeMail(r *http.Request) (string, gmail.Message, error) {
	var req struct {
		Owner string `json:"owner"`
		gmail.Message
	}
	if err := decode(r, &req); err != nil {
		return "", gmail.Message{}, err
	}
	return req.Owner, req.Message, nil
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	return nil
}

// toolRoute wraps a capability call in the structured response envelope.
func toolRoute(fn func(r *http.Request) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		data, err := fn(r)
		var resp protocol.ToolResponse
		if err != nil {
			log.Printf("[server] tool %s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusBadGateway)
			resp = protocol.Fail(err, true)
		} else {
			resp = protocol.OK(data)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Printf("[server] encode tool response: %v", err)
		}
	}
}
