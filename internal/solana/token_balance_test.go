package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// tokenAccountsServer answers getTokenAccountsByOwner per program id.
// A nil entry makes that program fail with an RPC error.
func tokenAccountsServer(t *testing.T, byProgram map[string][]map[string]interface{}) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		filter := req.Params[1].(map[string]interface{})
		program, _ := filter["programId"].(string)

		w.Header().Set("Content-Type", "application/json")

		accounts, ok := byProgram[program]
		if ok && accounts == nil {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"error":   map[string]interface{}{"code": -32000, "message": "node unhealthy"},
			})
			return
		}

		value := make([]interface{}, 0, len(accounts))
		for _, info := range accounts {
			value = append(value, map[string]interface{}{
				"account": map[string]interface{}{
					"data": map[string]interface{}{
						"parsed": map[string]interface{}{"info": info},
					},
				},
			})
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": value},
		})
	}))
}

func tokenInfo(mint, amount string, decimals int) map[string]interface{} {
	return map[string]interface{}{
		"mint": mint,
		"tokenAmount": map[string]interface{}{
			"amount":         amount,
			"decimals":       decimals,
			"uiAmountString": "",
		},
	}
}

func TestGetTokenBalance_SumsAcrossPrograms(t *testing.T) {
	server := tokenAccountsServer(t, map[string][]map[string]interface{}{
		TokenProgramID: {
			tokenInfo("Mint111", "1000000", 6),
			tokenInfo("OtherMint", "999", 6),
		},
		Token2022ProgramID: {
			tokenInfo("Mint111", "500000", 6),
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	balance, err := client.GetTokenBalance(context.Background(), "Owner111", "Mint111")
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}

	if balance.Amount.String() != "1500000" {
		t.Errorf("expected 1500000 base units, got %s", balance.Amount)
	}
	if balance.Decimals != 6 {
		t.Errorf("expected 6 decimals, got %d", balance.Decimals)
	}
	if balance.UIAmount().String() != "1.5" {
		t.Errorf("expected ui amount 1.5, got %s", balance.UIAmount())
	}
}

func TestGetTokenBalance_ToleratesOneProgramFailing(t *testing.T) {
	server := tokenAccountsServer(t, map[string][]map[string]interface{}{
		TokenProgramID:     nil, // RPC error
		Token2022ProgramID: {tokenInfo("Mint111", "750000", 6)},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))

	balance, err := client.GetTokenBalance(context.Background(), "Owner111", "Mint111")
	if err != nil {
		t.Fatalf("GetTokenBalance: %v", err)
	}
	if balance.Amount.String() != "750000" {
		t.Errorf("expected 750000 base units, got %s", balance.Amount)
	}
}

func TestGetTokenBalance_NoAccounts(t *testing.T) {
	server := tokenAccountsServer(t, map[string][]map[string]interface{}{
		TokenProgramID:     {tokenInfo("OtherMint", "42", 9)},
		Token2022ProgramID: {},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.GetTokenBalance(context.Background(), "Owner111", "Mint111")
	if !errors.Is(err, ErrNoTokenAccounts) {
		t.Errorf("expected ErrNoTokenAccounts, got %v", err)
	}
}

func TestGetTokenBalance_AllProgramsFailing(t *testing.T) {
	server := tokenAccountsServer(t, map[string][]map[string]interface{}{
		TokenProgramID:     nil,
		Token2022ProgramID: nil,
	})
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(10*time.Millisecond))

	_, err := client.GetTokenBalance(context.Background(), "Owner111", "Mint111")
	if err == nil {
		t.Fatal("expected error when both programs fail")
	}
	if errors.Is(err, ErrNoTokenAccounts) {
		t.Error("transport failure must not be reported as an empty balance")
	}
}
