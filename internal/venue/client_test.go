package venue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-launch/internal/domain"
	"stealth-launch/internal/observability"
)

func testMetadata(imageURL string) domain.TokenMetadata {
	return domain.TokenMetadata{
		Name:        "Test Token",
		Ticker:      "TEST",
		Description: "a test token",
		ImageURL:    imageURL,
		Twitter:     "https://x.com/test",
	}
}

func TestUploadMetadata(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake-png-bytes"))
	}))
	defer imageServer.Close()

	ipfsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "Test Token", r.FormValue("name"))
		assert.Equal(t, "TEST", r.FormValue("symbol"))
		assert.Equal(t, "a test token", r.FormValue("description"))
		assert.Equal(t, "true", r.FormValue("showName"))
		assert.Equal(t, "https://x.com/test", r.FormValue("twitter"))
		assert.Empty(t, r.FormValue("telegram"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		json.NewEncoder(w).Encode(map[string]string{"metadataUri": "ipfs://meta-1"})
	}))
	defer ipfsServer.Close()

	client := NewClient("http://unused", ipfsServer.URL)

	uri, err := client.UploadMetadata(context.Background(), testMetadata(imageServer.URL))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta-1", uri)
}

func TestUploadMetadata_NestedURI(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer imageServer.Close()

	ipfsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"metadata": map[string]string{"uri": "ipfs://meta-2"},
		})
	}))
	defer ipfsServer.Close()

	client := NewClient("http://unused", ipfsServer.URL)

	uri, err := client.UploadMetadata(context.Background(), testMetadata(imageServer.URL))
	require.NoError(t, err)
	assert.Equal(t, "ipfs://meta-2", uri)
}

func TestUploadMetadata_UploadRejected(t *testing.T) {
	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer imageServer.Close()

	ipfsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pin quota exceeded", http.StatusForbidden)
	}))
	defer ipfsServer.Close()

	client := NewClient("http://unused", ipfsServer.URL)

	_, err := client.UploadMetadata(context.Background(), testMetadata(imageServer.URL))

	var portalErr *PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, http.StatusForbidden, portalErr.Status)
	assert.Contains(t, portalErr.Body, "pin quota exceeded")
}

func TestBuildCreateTx(t *testing.T) {
	txBytes := []byte{1, 2, 3, 4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trade-local", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "create", req["action"])
		assert.Equal(t, "Payer111", req["publicKey"])
		assert.Equal(t, "Mint111", req["mint"])
		assert.Equal(t, "true", req["denominatedInSol"])
		assert.Equal(t, "pump", req["pool"])
		assert.EqualValues(t, 10, req["slippage"])

		md := req["tokenMetadata"].(map[string]interface{})
		assert.Equal(t, "ipfs://meta-1", md["uri"])

		w.Write(txBytes)
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused", WithAPIKey("key-1"))

	raw, err := client.BuildCreateTx(context.Background(), "Payer111", "Mint111", "ipfs://meta-1",
		decimal.RequireFromString("0.044"))
	require.NoError(t, err)
	assert.Equal(t, txBytes, raw)
}

func TestBuildCreateTx_ZeroBuy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)

		// A zero initial buy still creates the token.
		assert.EqualValues(t, 0, req["amount"])

		w.Write([]byte{9})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused")

	_, err := client.BuildCreateTx(context.Background(), "Payer111", "Mint111", "ipfs://meta-1", decimal.Zero)
	require.NoError(t, err)
}

func TestBuildSellTx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "sell", req["action"])
		assert.Equal(t, "false", req["denominatedInSol"])
		assert.Equal(t, "auto", req["pool"])
		assert.Equal(t, "123.456789", decimal.NewFromFloat(req["amount"].(float64)).String())

		w.Write([]byte{7, 7})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused")

	raw, err := client.BuildSellTx(context.Background(), "Seller111", "Mint111",
		decimal.RequireFromString("123.456789"))
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, raw)
}

func TestTradeLocal_AmountsAreJSONNumbers(t *testing.T) {
	// The portal parses amount and priorityFee as numbers; a quoted string
	// is rejected. Pin the raw encoding, not just the decoded value.
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)
		w.Write([]byte{1})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused")

	_, err := client.BuildSellTx(context.Background(), "Seller111", "Mint111",
		decimal.RequireFromString("123.456789"))
	require.NoError(t, err)

	assert.Contains(t, string(body), `"amount":123.456789`)
	assert.Contains(t, string(body), `"priorityFee":0.00001`)
	assert.NotContains(t, string(body), `"amount":"`)
	assert.NotContains(t, string(body), `"priorityFee":"`)
}

func TestBuildCollectCreatorFeeTx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		assert.Equal(t, "collectCreatorFee", req["action"])
		assert.Equal(t, "Creator111", req["publicKey"])
		_, hasMint := req["mint"]
		assert.False(t, hasMint, "collect request must not carry a mint")

		w.Write([]byte{5})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused")

	raw, err := client.BuildCollectCreatorFeeTx(context.Background(), "Creator111")
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, raw)
}

func TestTradeLocal_RecordsCallMetrics(t *testing.T) {
	metrics := observability.NewMetrics("venue_client_test")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["action"] == "create" {
			http.Error(w, "mint taken", http.StatusBadRequest)
			return
		}
		w.Write([]byte{1})
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused", WithMetrics(metrics))

	_, err := client.BuildSellTx(context.Background(), "Seller111", "Mint111",
		decimal.RequireFromString("5"))
	require.NoError(t, err)

	_, err = client.BuildCreateTx(context.Background(), "Payer111", "Mint111", "uri", decimal.Zero)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VenueCalls.WithLabelValues("sell", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VenueCalls.WithLabelValues("create", "error")))
}

func TestTradeLocal_PortalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"mint taken"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://unused")

	_, err := client.BuildCreateTx(context.Background(), "Payer111", "Mint111", "uri", decimal.Zero)

	var portalErr *PortalError
	require.ErrorAs(t, err, &portalErr)
	assert.Equal(t, http.StatusBadRequest, portalErr.Status)
	assert.Contains(t, portalErr.Body, "mint taken")
}

func TestDecodeTxBody(t *testing.T) {
	txBytes := []byte{1, 0, 0, 64, 65}
	encoded := base58.Encode(txBytes)

	tests := []struct {
		name    string
		body    string
		want    []byte
		wantErr bool
	}{
		{name: "raw bytes", body: string([]byte{1, 0, 0, 64, 65}), want: txBytes},
		{name: "bare json string", body: `"` + encoded + `"`, want: txBytes},
		{name: "json array", body: `["` + encoded + `"]`, want: txBytes},
		{name: "transaction field", body: `{"transaction":"` + encoded + `"}`, want: txBytes},
		{name: "transactions field", body: `{"transactions":["` + encoded + `"]}`, want: txBytes},
		{name: "empty", body: "", wantErr: true},
		{name: "unexpected json", body: `{"status":"ok"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeTxBody([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
