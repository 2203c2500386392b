package stream

import (
	"errors"
	"testing"
	"time"

	"tickscope/internal/ibkr/memorystore"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var received = time.Date(2025, 6, 20, 14, 30, 0, 0, time.UTC)

// go test -v --run TestDecodeControlToken
func TestDecodeControlToken(t *testing.T) {
	res := Decode([]byte(`{"topic":"system","success":"abc123"}`))
	tok, ok := res.(ControlToken)
	if !ok {
		t.Fatalf("expected ControlToken, got %T", res)
	}
	if tok.Token != "abc123" {
		t.Errorf("unexpected token %q", tok.Token)
	}
}

// go test -v --run TestDecodeSystemWithoutToken
func TestDecodeSystemWithoutToken(t *testing.T) {
	// heartbeats share the system topic but carry no token
	for _, raw := range []string{
		`{"topic":"system","hb":1718900000000}`,
		`{"topic":"system","success":""}`,
		`{"topic":"system","success":42}`,
	} {
		if _, ok := Decode([]byte(raw)).(DataBatch); !ok {
			t.Errorf("%s: expected DataBatch", raw)
		}
	}
}

// go test -v --run TestDecodeClassification
func TestDecodeClassification(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		records int // -1 means Unparsable
	}{
		{"single object", `{"conid":101,"31":"187.25"}`, 1},
		{"array", `[{"conid":101},{"conid":202}]`, 2},
		{"empty array", `[]`, 0},
		{"leading whitespace", "  \n{\"conid\":101}", 1},
		{"string literal", `"hello"`, -1},
		{"number", `42`, -1},
		{"empty", ``, -1},
		{"truncated", `{"conid":`, -1},
		{"array with scalar", `[{"conid":101}, 5]`, -1},
		{"not json", `smd+101`, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Decode([]byte(tc.raw))
			if tc.records < 0 {
				if _, ok := res.(Unparsable); !ok {
					t.Fatalf("expected Unparsable, got %T", res)
				}
				return
			}
			batch, ok := res.(DataBatch)
			if !ok {
				t.Fatalf("expected DataBatch, got %T", res)
			}
			if len(batch.Records) != tc.records {
				t.Errorf("expected %d records, got %d", tc.records, len(batch.Records))
			}
		})
	}
}

// go test -v --run TestDecodeEmptyFrameError
func TestDecodeEmptyFrameError(t *testing.T) {
	res, ok := Decode(nil).(Unparsable)
	if !ok || !errors.Is(res.Err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %+v", res)
	}
}

// go test -v --run TestToBatchStringEncodedFields
func TestToBatchStringEncodedFields(t *testing.T) {
	res := Decode([]byte(`{"conid":"265598","31":"187.25","84":"187.20","85":"187.30","3":"100","8":"1500000","7":"1718900000000"}`))
	batch, rejected := res.(DataBatch).ToBatch(received)
	if rejected != 0 {
		t.Fatalf("unexpected rejection")
	}
	if len(batch.Trades) != 1 || len(batch.Quotes) != 1 || len(batch.Volumes) != 1 {
		t.Fatalf("expected one of each, got %d/%d/%d", len(batch.Trades), len(batch.Quotes), len(batch.Volumes))
	}

	wantTS := time.UnixMilli(1718900000000)
	tr := batch.Trades[0]
	if tr.ContractID != 265598 || tr.Price != 187.25 || tr.Size == nil || *tr.Size != 100 || !tr.Timestamp.Equal(wantTS) {
		t.Errorf("unexpected trade %+v", tr)
	}
	q := batch.Quotes[0]
	if q.Bid == nil || *q.Bid != 187.20 || q.Ask == nil || *q.Ask != 187.30 || !q.Timestamp.Equal(wantTS) {
		t.Errorf("unexpected quote %+v", q)
	}
	v := batch.Volumes[0]
	if v.Volume != 1500000 || !v.Timestamp.Equal(wantTS) {
		t.Errorf("unexpected volume %+v", v)
	}
}

// go test -v --run TestToBatchNumberAndStringAgree
func TestToBatchNumberAndStringAgree(t *testing.T) {
	asString, _ := Decode([]byte(`{"conid":"101","31":"10.5","3":"7","8":"900","84":"10.4"}`)).(DataBatch).ToBatch(received)
	asNumber, _ := Decode([]byte(`{"conid":101,"31":10.5,"3":7,"8":900,"84":10.4}`)).(DataBatch).ToBatch(received)

	if asString.Trades[0].Price != asNumber.Trades[0].Price ||
		*asString.Trades[0].Size != *asNumber.Trades[0].Size ||
		asString.Volumes[0].Volume != asNumber.Volumes[0].Volume ||
		*asString.Quotes[0].Bid != *asNumber.Quotes[0].Bid {
		t.Errorf("encodings disagree: %+v vs %+v", asString, asNumber)
	}
	if asString.Quotes[0].Ask != nil || asNumber.Quotes[0].Ask != nil {
		t.Errorf("ask should be absent")
	}
}

// go test -v --run TestToBatchRejectsMissingConID
func TestToBatchRejectsMissingConID(t *testing.T) {
	res := Decode([]byte(`[{"31":"187.25"},{"conid":"abc","31":"1"},{"conid":202,"84":"50.1"}]`))
	batch, rejected := res.(DataBatch).ToBatch(received)
	if rejected != 2 {
		t.Errorf("expected 2 rejected, got %d", rejected)
	}
	if len(batch.Trades) != 0 || len(batch.Quotes) != 1 || batch.Quotes[0].ContractID != 202 {
		t.Errorf("sibling record lost: %+v", batch)
	}
}

// go test -v --run TestExtractReceivedAtFallback
func TestExtractReceivedAtFallback(t *testing.T) {
	for _, raw := range []string{
		`{"conid":101,"31":"1.5","7":"soon"}`,
		`{"conid":101,"31":"1.5","7":1e300}`,
		`{"conid":101,"31":"1.5","7":"-1e30"}`,
	} {
		rec := Decode([]byte(raw)).(DataBatch).Records[0]
		out, err := rec.Extract(received)
		if err != nil {
			t.Fatalf("%s: extract: %v", raw, err)
		}
		if !out.Trades[0].Timestamp.Equal(received) {
			t.Errorf("%s: expected receive time, got %s", raw, out.Trades[0].Timestamp)
		}
	}
}

// go test -v --run TestExtractFieldRules
func TestExtractFieldRules(t *testing.T) {
	cases := []struct {
		name                   string
		raw                    string
		trades, quotes, volume int
		sizeSet                bool
	}{
		{"size without price", `{"conid":1,"3":"100"}`, 0, 0, 0, false},
		{"price without size", `{"conid":1,"31":"2"}`, 1, 0, 0, false},
		{"ask only", `{"conid":1,"85":"2"}`, 0, 1, 0, false},
		{"bid not numeric", `{"conid":1,"84":"n/a"}`, 0, 0, 0, false},
		{"negative volume", `{"conid":1,"8":"-5"}`, 0, 0, 0, false},
		{"fractional volume", `{"conid":1,"8":"12.5"}`, 0, 0, 0, false},
		{"integral float volume", `{"conid":1,"8":12.0}`, 0, 0, 1, false},
		{"negative size ignored", `{"conid":1,"31":"2","3":"-1"}`, 1, 0, 0, false},
		{"nan price", `{"conid":1,"31":"NaN"}`, 0, 0, 0, false},
		{"null price", `{"conid":1,"31":null}`, 0, 0, 0, false},
		{"no fields", `{"conid":1,"topic":"smd+1"}`, 0, 0, 0, false},
		{"full trade", `{"conid":1,"31":"2","3":"5"}`, 1, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := Decode([]byte(tc.raw)).(DataBatch).Records[0]
			out, err := rec.Extract(received)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if len(out.Trades) != tc.trades || len(out.Quotes) != tc.quotes || len(out.Volumes) != tc.volume {
				t.Fatalf("got %d/%d/%d", len(out.Trades), len(out.Quotes), len(out.Volumes))
			}
			if tc.trades == 1 && (out.Trades[0].Size != nil) != tc.sizeSet {
				t.Errorf("size set = %v, want %v", out.Trades[0].Size != nil, tc.sizeSet)
			}
		})
	}
}

// go test -v --run TestExtractRejectsZeroConID
func TestExtractRejectsZeroConID(t *testing.T) {
	rec := RawRecord{}
	rec["conid"] = []byte(`0`)
	if _, err := rec.Extract(received); !errors.Is(err, ErrRecordRejected) {
		t.Errorf("expected ErrRecordRejected, got %v", err)
	}
}

// go test -v --run TestFrameHandlerRouting
func TestFrameHandlerRouting(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var tokens []string
	var batches []memorystore.Batch
	handle := MakeFrameHandler(zap.New(core),
		func(tok string) { tokens = append(tokens, tok) },
		func(b memorystore.Batch) { batches = append(batches, b) },
	)

	handle([]byte(`{"topic":"system","success":"tok1"}`), received)
	handle([]byte(`"garbage"`), received)
	handle([]byte(`{"topic":"system","hb":1}`), received)
	handle([]byte(`[{"conid":101,"31":"1"},{"31":"2"}]`), received)

	if len(tokens) != 1 || tokens[0] != "tok1" {
		t.Errorf("unexpected tokens %v", tokens)
	}
	// the heartbeat still yields an (empty) batch so the store gets trimmed
	if len(batches) != 2 || batches[0].Len() != 0 || len(batches[1].Trades) != 1 {
		t.Errorf("unexpected batches %+v", batches)
	}
	if n := logs.FilterMessage("dropping unparsable frame").Len(); n != 1 {
		t.Errorf("expected 1 unparsable log, got %d", n)
	}
	if n := logs.FilterMessage("dropped records without conid").Len(); n != 2 {
		// heartbeat frame and the conid-less sibling
		t.Errorf("expected 2 rejection logs, got %d", n)
	}
}
