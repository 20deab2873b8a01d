package tradelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validEntry() Entry {
	return Entry{
		TradedAt:   time.UnixMilli(1700000000000),
		OrderID:    "o1",
		Instrument: "IF2609",
		Direction:  "LONG",
		Side:       "BUY",
		Price:      10.5,
		Quantity:   100,
	}
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Append(validEntry()); err != nil {
		t.Fatalf("append err: %v", err)
	}
	second := validEntry()
	second.OrderID = "o2"
	second.Side = "SELL"
	if err := sink.Append(second); err != nil {
		t.Fatalf("append err: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Logf("sync: %v", err) // 某些文件系统不支持 sync，不视为失败
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trade log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var rec map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line not valid json: %v", err)
	}
	if rec["orderId"] != "o1" || rec["instrument"] != "IF2609" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["tradedAtMs"] != float64(1700000000000) {
		t.Fatalf("unexpected tradedAtMs: %v", rec["tradedAtMs"])
	}
}

func TestAppendRejectsIncompleteEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	bad := validEntry()
	bad.OrderID = ""
	bad.TradedAt = time.Time{}
	err = sink.Append(bad)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	// 缺失字段一次性列出
	if !strings.Contains(err.Error(), "orderId") || !strings.Contains(err.Error(), "tradedAt") {
		t.Fatalf("error should list all missing fields: %v", err)
	}
}
