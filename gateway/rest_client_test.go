package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"order-keeper-go/order"
)

func newTestClient(ts *httptest.Server) *RESTClient {
	return &RESTClient{
		BaseURL:    ts.URL,
		APIKey:     "key",
		Secret:     "secret",
		HTTPClient: ts.Client(),
	}
}

func TestQueryOrdersMapsStatuses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "key" {
			t.Fatalf("missing api key header")
		}
		if !strings.Contains(r.URL.RawQuery, "signature=") {
			t.Fatalf("missing signature")
		}
		io.WriteString(w, `[
			{"orderId":"1","instrument":"IF2609","side":"BUY","status":"FILLED","price":"10","quantity":"100","executedQty":"100","avgPrice":"10","submittedAt":1000,"updatedAt":2000},
			{"orderId":"2","instrument":"IF2609","side":"SELL","status":"PARTIALLY_FILLED","price":"11","quantity":"50","executedQty":"20","avgPrice":"11","submittedAt":1500,"updatedAt":2500},
			{"orderId":"3","instrument":"IC2609","side":"BUY","status":"EXPIRED","price":"9","quantity":"10","executedQty":"0","avgPrice":"0","submittedAt":1600,"updatedAt":2600}
		]`)
	}))
	defer ts.Close()

	orders, err := newTestClient(ts).QueryTodayOrders(context.Background())
	if err != nil {
		t.Fatalf("query err: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].Status != order.StatusFilled || orders[0].Side != order.SideBuy {
		t.Fatalf("unexpected first order: %+v", orders[0])
	}
	if orders[1].Status != order.StatusPartial {
		t.Fatalf("PARTIALLY_FILLED should map to partial, got %s", orders[1].Status)
	}
	if orders[2].Status != order.StatusCanceled {
		t.Fatalf("EXPIRED should map to canceled, got %s", orders[2].Status)
	}
}

// 抓取失败必须原样上抛，不能退化成空列表。
func TestQueryOrdersErrorPropagates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"msg":"maintenance"}`)
	}))
	defer ts.Close()

	orders, err := newTestClient(ts).QueryHistoryOrders(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if orders != nil {
		t.Fatalf("expected nil orders on error, got %v", orders)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("error should carry status code: %v", err)
	}
}

func TestPlaceCancelReplace(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "signature=") {
			t.Fatalf("missing signature")
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/order":
			if !strings.Contains(r.URL.RawQuery, "clientOrderId=") {
				t.Fatalf("missing clientOrderId")
			}
			io.WriteString(w, `{"orderId":"1001"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/order":
			w.WriteHeader(200)
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/order/replace":
			io.WriteString(w, `{"orderId":"1002"}`)
		default:
			t.Fatalf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := newTestClient(ts)
	id, err := cli.PlaceLimit(context.Background(), "IF2609", order.SideBuy, 100, 1)
	if err != nil {
		t.Fatalf("place err: %v", err)
	}
	if id != "1001" {
		t.Fatalf("unexpected order id %s", id)
	}
	if err := cli.CancelOrder(context.Background(), "IF2609", id); err != nil {
		t.Fatalf("cancel err: %v", err)
	}
	newID, err := cli.ReplaceOrderPrice(context.Background(), "IF2609", id, 101)
	if err != nil {
		t.Fatalf("replace err: %v", err)
	}
	if newID != "1002" {
		t.Fatalf("unexpected replacement id %s", newID)
	}
}

func TestQueryAccountAndPositions(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/account":
			io.WriteString(w, `{"balance":"100000","available":"80000","margin":"20000","updatedAt":3000}`)
		case "/api/v1/positions":
			io.WriteString(w, `[{"instrument":"IF2609","direction":"LONG","quantity":"2","avgPrice":"10.5","updatedAt":3000}]`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := newTestClient(ts)
	info, err := cli.QueryAccount(context.Background())
	if err != nil {
		t.Fatalf("account err: %v", err)
	}
	if info.Balance != 100000 || info.Available != 80000 {
		t.Fatalf("unexpected account: %+v", info)
	}
	positions, err := cli.QueryPositions(context.Background())
	if err != nil {
		t.Fatalf("positions err: %v", err)
	}
	if len(positions) != 1 || positions[0].Instrument != "IF2609" || positions[0].Quantity != 2 {
		t.Fatalf("unexpected positions: %+v", positions)
	}
}
