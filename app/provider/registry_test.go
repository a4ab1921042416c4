package provider

import (
	"context"
	"net/http"
	"testing"
)

type stubProvider struct {
	code string
}

func (s *stubProvider) Code() string { return s.code }

func (s *stubProvider) CreatePix(context.Context, *PixInput) (*PixOutput, error) {
	return &PixOutput{TransactionID: s.code}, nil
}

func (s *stubProvider) GetChargeStatus(context.Context, string) (string, error) {
	return ChargeStatusPending, nil
}

func (s *stubProvider) VerifyAndParseCallback(context.Context, []byte, http.Header) (*CallbackEvent, error) {
	return nil, ErrInvalidCallback
}

func TestRegistryChainOrdersByWeight(t *testing.T) {
	r := NewRegistry()
	r.shuffle = func(n int, swap func(i, j int)) {}
	r.Register(&stubProvider{code: "low"}, 10)
	r.Register(&stubProvider{code: "high"}, 90)
	r.Register(&stubProvider{code: "mid"}, 50)

	chain := r.Chain()
	got := []string{chain[0].Code(), chain[1].Code(), chain[2].Code()}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}

func TestRegistryChainShufflesTies(t *testing.T) {
	r := NewRegistry()
	r.shuffle = func(n int, swap func(i, j int)) {
		if n > 1 {
			swap(0, 1)
		}
	}
	r.Register(&stubProvider{code: "a"}, 50)
	r.Register(&stubProvider{code: "b"}, 50)

	chain := r.Chain()
	if chain[0].Code() != "b" {
		t.Fatalf("expected tie order to follow shuffle, got %s", chain[0].Code())
	}
}

func TestRegistryGetAndCapabilities(t *testing.T) {
	r := NewRegistry(&stubProvider{code: "evopay"})
	if _, err := r.Get("unknown"); err != ErrProviderNotSupported {
		t.Fatalf("expected ErrProviderNotSupported, got %v", err)
	}
	if _, _, err := r.CardCharger(); err != ErrProviderNotSupported {
		t.Fatalf("expected no card charger, got %v", err)
	}

	r.Register(NewAsaasProvider(AsaasConfig{}), 1)
	p, _, err := r.BoletoCreator()
	if err != nil || p.Code() != AsaasCode {
		t.Fatalf("expected asaas boleto creator, got %v %v", p, err)
	}
}
