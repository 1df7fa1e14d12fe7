package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"journal/internal/domain"
	"journal/internal/marks"
	"journal/internal/store"
)

func newTestServer() *Server {
	return NewServer(store.NewMemoryStore(), marks.NewMemorySource(), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
}

func TestHealthEndpoint_MemoryStore(t *testing.T) {
	router := newTestServer().Router()

	w := do(t, router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestServer().Router()

	tests := []struct {
		method, path string
	}{
		{"PUT", "/api/v1/trades"},
		{"DELETE", "/api/v1/trades"},
		{"PUT", "/api/v1/positions"},
		{"PATCH", "/api/v1/positions/p-1"},
		{"GET", "/api/v1/positions/p-1/transactions"},
		{"POST", "/api/v1/marks/AAPL"},
		{"GET", "/api/v1/import"},
		{"DELETE", "/api/v1/import"},
	}
	for _, tt := range tests {
		w := do(t, router, tt.method, tt.path, "")
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.path, w.Code)
		}
	}
}

func TestRouterHasCorrectGETRoutes(t *testing.T) {
	router := newTestServer().Router()

	paths := []string{
		"/health",
		"/api/v1/trades",
		"/api/v1/trades/stats",
		"/api/v1/positions",
	}
	for _, path := range paths {
		w := do(t, router, "GET", path, "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestJSONContentType(t *testing.T) {
	router := newTestServer().Router()

	w := do(t, router, "GET", "/api/v1/trades/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["error"] != "trade not found" {
		t.Errorf("expected 'trade not found', got %q", resp["error"])
	}
}

const shortTradeBody = `{"symbol":"NVDA","type":"Aktie","side":"Short","shares":100,"broker":"DEGIRO",
	"entryDate":"2024-03-01","entryPrice":485,"exitDate":"2024-03-08","exitPrice":465.5}`

func TestTradeLifecycle(t *testing.T) {
	router := newTestServer().Router()

	w := do(t, router, "POST", "/api/v1/trades", shortTradeBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created domain.Trade
	decode(t, w, &created)
	if created.ID == "" {
		t.Fatal("expected generated trade id")
	}
	if created.Status != domain.TradeStatusClosed {
		t.Errorf("expected derived status closed, got %q", created.Status)
	}
	if created.PnL == nil || *created.PnL != 1950 {
		t.Errorf("expected pnl 1950, got %v", created.PnL)
	}
	if created.PnLPercent == nil || *created.PnLPercent != 4.02 {
		t.Errorf("expected pnlPercent 4.02, got %v", created.PnLPercent)
	}

	w = do(t, router, "PATCH", "/api/v1/trades/"+created.ID, `{"exitPrice":475}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated domain.Trade
	decode(t, w, &updated)
	if updated.PnL == nil || *updated.PnL != 1000 {
		t.Errorf("expected recomputed pnl 1000, got %v", updated.PnL)
	}

	w = do(t, router, "GET", "/api/v1/trades/"+created.ID+"/position", "")
	if w.Code != http.StatusOK {
		t.Fatalf("trade position: expected 200, got %d", w.Code)
	}
	var pos domain.Position
	decode(t, w, &pos)
	if pos.Status != domain.PositionStatusClosed || pos.RealizedPnL != 1000 || len(pos.Transactions) != 2 {
		t.Errorf("unexpected trade position: %+v", pos)
	}

	w = do(t, router, "GET", "/api/v1/trades/stats", "")
	var st domain.TradeStats
	decode(t, w, &st)
	if st.TotalTrades != 1 || st.ClosedTrades != 1 || st.TotalPnL != 1000 || st.WinRate != 100 {
		t.Errorf("unexpected stats: %+v", st)
	}

	w = do(t, router, "DELETE", "/api/v1/trades/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = do(t, router, "GET", "/api/v1/trades/"+created.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestCreateTrade_Validation(t *testing.T) {
	router := newTestServer().Router()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not json`},
		{"missing symbol", `{"type":"Aktie","side":"Long","shares":1,"entryDate":"2024-01-01","entryPrice":10}`},
		{"bad type", `{"symbol":"X","type":"Anleihe","side":"Long","shares":1,"entryDate":"2024-01-01","entryPrice":10}`},
		{"bad side", `{"symbol":"X","type":"Aktie","side":"Buy","shares":1,"entryDate":"2024-01-01","entryPrice":10}`},
		{"zero shares", `{"symbol":"X","type":"Aktie","side":"Long","shares":0,"entryDate":"2024-01-01","entryPrice":10}`},
		{"bad date", `{"symbol":"X","type":"Aktie","side":"Long","shares":1,"entryDate":"01.01.2024","entryPrice":10}`},
		{"exit price without date", `{"symbol":"X","type":"Aktie","side":"Long","shares":1,"entryDate":"2024-01-01","entryPrice":10,"exitPrice":12}`},
		{"exit before entry", `{"symbol":"X","type":"Aktie","side":"Long","shares":1,"entryDate":"2024-01-05","entryPrice":10,"exitDate":"2024-01-01","exitPrice":12}`},
		{"exit exceeds entry", `{"symbol":"X","type":"Aktie","side":"Long","shares":10,"entryDate":"2024-01-01","entryPrice":10,"exitDate":"2024-01-05","exitPrice":12,"exitShares":11}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/trades", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestListTrades_Filters(t *testing.T) {
	router := newTestServer().Router()

	do(t, router, "POST", "/api/v1/trades", shortTradeBody)
	do(t, router, "POST", "/api/v1/trades",
		`{"symbol":"BTC","type":"Krypto","side":"Long","shares":1,"entryDate":"2024-04-01","entryPrice":60000}`)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?status=open", 1},
		{"?status=closed", 1},
		{"?type=Krypto", 1},
		{"?type=Krypto&status=closed", 0},
	}
	for _, tt := range tests {
		w := do(t, router, "GET", "/api/v1/trades"+tt.query, "")
		var trades []domain.Trade
		decode(t, w, &trades)
		if len(trades) != tt.want {
			t.Errorf("GET /api/v1/trades%s: expected %d trades, got %d", tt.query, tt.want, len(trades))
		}
	}

	if w := do(t, router, "GET", "/api/v1/trades?status=pending", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %d", w.Code)
	}
}

func TestListTrades_Pagination(t *testing.T) {
	router := newTestServer().Router()

	for _, date := range []string{"2024-01-01", "2024-02-01", "2024-03-01"} {
		w := do(t, router, "POST", "/api/v1/trades",
			`{"symbol":"SAP","type":"Aktie","side":"Long","shares":10,"entryDate":"`+date+`","entryPrice":100}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("create trade: expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := do(t, router, "GET", "/api/v1/trades?limit=2", "")
	var page []domain.Trade
	decode(t, w, &page)
	if len(page) != 2 || page[0].EntryDate.Month() != time.March {
		t.Fatalf("unexpected first page: %+v", page)
	}
	cursor := w.Header().Get("X-Next-Cursor")
	if cursor == "" {
		t.Fatal("expected X-Next-Cursor on a full page")
	}

	w = do(t, router, "GET", "/api/v1/trades?limit=2&cursor="+cursor, "")
	decode(t, w, &page)
	if len(page) != 1 || page[0].EntryDate.Month() != time.January {
		t.Fatalf("unexpected second page: %+v", page)
	}
	if next := w.Header().Get("X-Next-Cursor"); next != "" {
		t.Errorf("expected no cursor on the last page, got %q", next)
	}

	for _, q := range []string{"?limit=0", "?limit=201", "?limit=abc", "?cursor=%25%25"} {
		if w := do(t, router, "GET", "/api/v1/trades"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET /api/v1/trades%s: expected 400, got %d", q, w.Code)
		}
	}
}

func openAAPL(t *testing.T, router http.Handler) domain.Position {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/positions",
		`{"symbol":"AAPL","type":"Aktie","side":"Long","date":"2024-01-10","shares":100,"price":150}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create position: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var pos domain.Position
	decode(t, w, &pos)

	for _, body := range []string{
		`{"type":"ENTRY","date":"2024-01-15","shares":50,"price":156}`,
		`{"type":"EXIT","date":"2024-02-01","shares":60,"price":165}`,
	} {
		w = do(t, router, "POST", "/api/v1/positions/"+pos.ID+"/transactions", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("append: expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}
	decode(t, w, &pos)
	return pos
}

func TestPositionLifecycle(t *testing.T) {
	router := newTestServer().Router()

	pos := openAAPL(t, router)
	if pos.Status != domain.PositionStatusPartial {
		t.Errorf("expected PARTIAL, got %s", pos.Status)
	}
	if pos.AvgEntryPrice != 152 || pos.RealizedPnL != 780 || pos.RemainingShares != 90 {
		t.Errorf("unexpected aggregate: avg=%v realized=%v remaining=%d", pos.AvgEntryPrice, pos.RealizedPnL, pos.RemainingShares)
	}
	if pos.UnrealizedPnL != 0 {
		t.Errorf("expected no unrealized pnl without a price, got %v", pos.UnrealizedPnL)
	}

	w := do(t, router, "GET", "/api/v1/positions/"+pos.ID+"?current_price=170", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	var marked domain.Position
	decode(t, w, &marked)
	if marked.UnrealizedPnL != 1620 || marked.TotalPnL != 2400 || marked.TotalPnLPercent != 10.53 {
		t.Errorf("unexpected marked position: unrealized=%v total=%v pct=%v",
			marked.UnrealizedPnL, marked.TotalPnL, marked.TotalPnLPercent)
	}

	w = do(t, router, "GET", "/api/v1/positions/"+pos.ID+"/metrics", "")
	var m domain.PositionMetrics
	decode(t, w, &m)
	if m.EntryCount != 2 || m.ExitCount != 1 || m.ClosedPercent != 40 || m.OpenPercent != 60 {
		t.Errorf("unexpected metrics: %+v", m)
	}

	w = do(t, router, "POST", "/api/v1/positions/"+pos.ID+"/transactions",
		`{"type":"EXIT","date":"2024-02-05","shares":500,"price":165}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversell: expected 400, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/positions/"+pos.ID+"/transactions",
		`{"type":"EXIT","date":"2024-02-05","shares":90,"price":160}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("close: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var closed domain.Position
	decode(t, w, &closed)
	if closed.Status != domain.PositionStatusClosed || closed.RemainingShares != 0 {
		t.Errorf("expected closed position, got %s with %d remaining", closed.Status, closed.RemainingShares)
	}

	w = do(t, router, "DELETE", "/api/v1/positions/"+pos.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	if w := do(t, router, "GET", "/api/v1/positions/"+pos.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestGetPosition_InvalidCurrentPrice(t *testing.T) {
	router := newTestServer().Router()
	pos := openAAPL(t, router)

	for _, q := range []string{"abc", "0", "-5", "NaN", "Inf", "+Inf", "-Inf", "1e400"} {
		w := do(t, router, "GET", "/api/v1/positions/"+pos.ID+"?current_price="+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("current_price=%s: expected 400, got %d", q, w.Code)
			continue
		}
		var body map[string]string
		decode(t, w, &body)
		if body["error"] == "" {
			t.Errorf("current_price=%s: expected JSON error body", q)
		}
	}
}

func TestListPositions_StatusFilter(t *testing.T) {
	router := newTestServer().Router()
	openAAPL(t, router)
	do(t, router, "POST", "/api/v1/positions",
		`{"symbol":"TSLA","type":"Aktie","side":"Short","date":"2024-03-01","shares":10,"price":200}`)

	tests := []struct {
		status string
		want   int
	}{
		{"", 2},
		{"all", 2},
		{"open", 1},
		{"partial", 1},
		{"PARTIAL", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		w := do(t, router, "GET", "/api/v1/positions?status="+tt.status, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status=%s: expected 200, got %d", tt.status, w.Code)
		}
		var positions []domain.Position
		decode(t, w, &positions)
		if len(positions) != tt.want {
			t.Errorf("status=%s: expected %d positions, got %d", tt.status, tt.want, len(positions))
		}
	}

	if w := do(t, router, "GET", "/api/v1/positions?status=pending", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid status, got %d", w.Code)
	}
}

func TestCreatePosition_Validation(t *testing.T) {
	router := newTestServer().Router()

	bodies := []string{
		`{"type":"Aktie","side":"Long","date":"2024-01-10","shares":100,"price":150}`,
		`{"symbol":"AAPL","type":"Aktie","side":"Long","date":"2024-01-10","shares":0,"price":150}`,
		`{"symbol":"AAPL","type":"Aktie","side":"Long","date":"2024-01-10","shares":10,"price":-1}`,
		`{"symbol":"AAPL","type":"Aktie","side":"Long","broker":"Sparkasse","date":"2024-01-10","shares":10,"price":1}`,
	}
	for _, body := range bodies {
		if w := do(t, router, "POST", "/api/v1/positions", body); w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, w.Code)
		}
	}

	w := do(t, router, "POST", "/api/v1/positions/missing/transactions",
		`{"type":"ENTRY","date":"2024-01-15","shares":50,"price":156}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown position, got %d", w.Code)
	}
	w = do(t, router, "POST", "/api/v1/positions/missing/transactions",
		`{"type":"HOLD","date":"2024-01-15","shares":50,"price":156}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid transaction type, got %d", w.Code)
	}
}

func TestMarks_UsedForUnrealizedPnL(t *testing.T) {
	router := newTestServer().Router()
	pos := openAAPL(t, router)

	if w := do(t, router, "GET", "/api/v1/marks/AAPL", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 before a mark is set, got %d", w.Code)
	}

	w := do(t, router, "PUT", "/api/v1/marks/AAPL", `{"price":170}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set mark: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var mark marks.Mark
	decode(t, w, &mark)
	if mark.Symbol != "AAPL" || mark.Price != 170 {
		t.Errorf("unexpected mark: %+v", mark)
	}

	w = do(t, router, "GET", "/api/v1/positions/"+pos.ID, "")
	var marked domain.Position
	decode(t, w, &marked)
	if marked.UnrealizedPnL != 1620 {
		t.Errorf("expected unrealized 1620 from mark, got %v", marked.UnrealizedPnL)
	}

	// An explicit price wins over the mark.
	w = do(t, router, "GET", "/api/v1/positions/"+pos.ID+"?current_price=152", "")
	decode(t, w, &marked)
	if marked.UnrealizedPnL != 0 {
		t.Errorf("expected unrealized 0 at avg price, got %v", marked.UnrealizedPnL)
	}

	if w := do(t, router, "PUT", "/api/v1/marks/AAPL", `{"price":0}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero price, got %d", w.Code)
	}
}

func TestMarks_SymbolIgnoresCase(t *testing.T) {
	router := newTestServer().Router()
	pos := openAAPL(t, router)

	w := do(t, router, "PUT", "/api/v1/marks/aapl", `{"price":170}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set mark: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var mark marks.Mark
	decode(t, w, &mark)
	if mark.Symbol != "AAPL" {
		t.Errorf("expected symbol AAPL, got %s", mark.Symbol)
	}

	if w := do(t, router, "GET", "/api/v1/marks/Aapl", ""); w.Code != http.StatusOK {
		t.Errorf("expected mark to be found in any case, got %d", w.Code)
	}

	w = do(t, router, "GET", "/api/v1/positions/"+pos.ID, "")
	var marked domain.Position
	decode(t, w, &marked)
	if marked.UnrealizedPnL != 1620 {
		t.Errorf("expected unrealized 1620 from lowercase mark, got %v", marked.UnrealizedPnL)
	}
}
