package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stealth-launch/internal/solana"
	"stealth-launch/internal/wallet"
)

// fakeRPC scripts the network surface.
type fakeRPC struct {
	simResult *solana.SimulateResult
	simErr    error
	simCalls  int

	sendSig   string
	sendErr   error
	sendCalls int

	statuses    []*solana.SignatureStatus
	statusErr   error
	statusCalls int
}

func (f *fakeRPC) SimulateTransaction(ctx context.Context, txBytes []byte, sigVerify bool) (*solana.SimulateResult, error) {
	f.simCalls++
	return f.simResult, f.simErr
}

func (f *fakeRPC) SendTransaction(ctx context.Context, txBytes []byte) (string, error) {
	f.sendCalls++
	return f.sendSig, f.sendErr
}

func (f *fakeRPC) GetSignatureStatus(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, nil
	}
	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return status, nil
}

type fakeWaiter struct {
	notif *solana.SignatureNotification
	err   error
	calls int
}

func (f *fakeWaiter) WaitForSignature(ctx context.Context, signature, commitment string) (*solana.SignatureNotification, error) {
	f.calls++
	return f.notif, f.err
}

// unsignedTx builds a serialized transaction requiring the given keypairs.
func unsignedTx(t *testing.T, signers ...*wallet.Keypair) []byte {
	t.Helper()

	msg := []byte{0x80, byte(len(signers)), 0, 1} // v0 prefix + header
	msg = append(msg, byte(len(signers)+1))       // compact-u16 key count
	for _, kp := range signers {
		msg = append(msg, kp.PublicKey()...)
	}
	msg = append(msg, make([]byte, 32)...) // one non-signer key
	msg = append(msg, make([]byte, 32)...) // blockhash
	msg = append(msg, 0)                   // no instructions

	raw := []byte{byte(len(signers))}
	for range signers {
		raw = append(raw, make([]byte, 64)...)
	}
	return append(raw, msg...)
}

func finalizedStatus() *solana.SignatureStatus {
	return &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized}
}

func TestExecute_HappyPathPolling(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
		statuses:  []*solana.SignatureStatus{finalizedStatus()},
	}
	exec := New(rpc, WithPollInterval(time.Millisecond))

	sig, err := exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})
	require.NoError(t, err)
	assert.Equal(t, "sig111", sig)
	assert.Equal(t, 1, rpc.simCalls)
	assert.Equal(t, 1, rpc.sendCalls)
}

func TestExecute_NoMatchingSigner(t *testing.T) {
	required, err := wallet.Generate()
	require.NoError(t, err)
	stranger, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{simResult: &solana.SimulateResult{}}
	exec := New(rpc)

	_, err = exec.Execute(context.Background(), unsignedTx(t, required), []*wallet.Keypair{stranger})

	var noSigner *NoMatchingSignerError
	require.ErrorAs(t, err, &noSigner)
	assert.Contains(t, noSigner.Required, required.Address())
	assert.Contains(t, noSigner.Candidates, stranger.Address())
	assert.Zero(t, rpc.simCalls, "must not simulate without a signer")
	assert.Zero(t, rpc.sendCalls)
}

func TestExecute_PartialCandidateSet(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)
	extra, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
		statuses:  []*solana.SignatureStatus{finalizedStatus()},
	}
	exec := New(rpc, WithPollInterval(time.Millisecond))

	// The extra candidate is not required; only kp must sign.
	sig, err := exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{extra, kp})
	require.NoError(t, err)
	assert.Equal(t, "sig111", sig)
}

func TestExecute_SimulationFailureNeverSubmits(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{
			Err:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
			Logs: []string{"Program log: insufficient lamports"},
		},
	}
	exec := New(rpc)

	_, err = exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})

	var simErr *SimulateFailedError
	require.ErrorAs(t, err, &simErr)
	assert.NotNil(t, simErr.TxErr)
	assert.Equal(t, []string{"Program log: insufficient lamports"}, simErr.Logs)
	assert.Zero(t, rpc.sendCalls, "failed simulation must never be submitted")
}

func TestExecute_SendFailure(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{Logs: []string{"Program log: ok"}},
		sendErr:   fmt.Errorf("blockhash not found"),
	}
	exec := New(rpc)

	_, err = exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})

	var sendErr *SendFailedError
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Cause.Error(), "blockhash not found")
	assert.Equal(t, []string{"Program log: ok"}, sendErr.Logs)
}

func TestExecute_OnChainFailureDuringConfirm(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
		statuses: []*solana.SignatureStatus{
			{ConfirmationStatus: solana.CommitmentFinalized, Err: "AccountInUse"},
		},
	}
	exec := New(rpc, WithPollInterval(time.Millisecond))

	_, err = exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})

	var sendErr *SendFailedError
	require.ErrorAs(t, err, &sendErr)
	assert.Contains(t, sendErr.Error(), "failed on-chain")
}

func TestExecute_ConfirmTimeout(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
		// Status never reaches finalized.
		statuses: []*solana.SignatureStatus{{ConfirmationStatus: "confirmed"}},
	}
	exec := New(rpc,
		WithPollInterval(time.Millisecond),
		WithConfirmTimeout(50*time.Millisecond),
	)

	_, err = exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})

	var sendErr *SendFailedError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, sendErr.Cause, context.DeadlineExceeded)
}

func TestExecute_WebSocketFinality(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
	}
	waiter := &fakeWaiter{notif: &solana.SignatureNotification{Slot: 100}}
	exec := New(rpc, WithFinalityWaiter(waiter))

	sig, err := exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})
	require.NoError(t, err)
	assert.Equal(t, "sig111", sig)
	assert.Equal(t, 1, waiter.calls)
	assert.Zero(t, rpc.statusCalls, "websocket finality should not poll")
}

func TestExecute_WebSocketFailureFallsBackToPolling(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	rpc := &fakeRPC{
		simResult: &solana.SimulateResult{},
		sendSig:   "sig111",
		statuses:  []*solana.SignatureStatus{finalizedStatus()},
	}
	waiter := &fakeWaiter{err: errors.New("connection closed")}
	exec := New(rpc, WithFinalityWaiter(waiter), WithPollInterval(time.Millisecond))

	sig, err := exec.Execute(context.Background(), unsignedTx(t, kp), []*wallet.Keypair{kp})
	require.NoError(t, err)
	assert.Equal(t, "sig111", sig)
	assert.Equal(t, 1, waiter.calls)
	assert.NotZero(t, rpc.statusCalls)
}

func TestExecute_MalformedTransaction(t *testing.T) {
	kp, err := wallet.Generate()
	require.NoError(t, err)

	exec := New(&fakeRPC{})

	_, err = exec.Execute(context.Background(), []byte{1, 2}, []*wallet.Keypair{kp})
	assert.ErrorIs(t, err, solana.ErrTruncatedTransaction)
}
