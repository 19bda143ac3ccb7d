package condition

import "testing"

func tickers() map[string]map[string]any {
	return map[string]map[string]any{
		"binance": {
			"BTC/USDT": map[string]any{"last": 30000.0},
		},
	}
}

func TestEvalTrue(t *testing.T) {
	ok, err := Eval(`tickers["binance"]["BTC/USDT"]["last"] > 29000.0`, tickers())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected condition to be true")
	}
}

func TestEvalFalse(t *testing.T) {
	ok, err := Eval(`tickers["binance"]["BTC/USDT"]["last"] > 100000.0`, tickers())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected condition to be false")
	}
}

func TestEvalMissingKeyIsError(t *testing.T) {
	_, err := Eval(`tickers["binance"]["ETH/USDT"]["last"] > 1.0`, tickers())
	if err == nil {
		t.Fatal("expected error for missing ticker key")
	}
}

func TestEvalSyntaxErrorIsError(t *testing.T) {
	_, err := Eval(`this is not an expression &&&`, tickers())
	if err == nil {
		t.Fatal("expected error for malformed expression")
	}
}

func TestEvalAndOrNot(t *testing.T) {
	ok, err := Eval(`tickers["binance"]["BTC/USDT"]["last"] > 1.0 && !(tickers["binance"]["BTC/USDT"]["last"] > 1000000.0)`, tickers())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected compound condition to be true")
	}
}
