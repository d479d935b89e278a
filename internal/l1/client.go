package l1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/klingon-exchange/barterd/pkg/fieldkey"
	"github.com/klingon-exchange/barterd/pkg/logging"
)

// Client is the operator's view of the escrow pool: read access to every
// tracked trade's committed state, and the three proof-carrying mutations
// a zkApp operator account is authorized to submit.
type Client interface {
	Initialize(ctx context.Context) error
	GetActiveTrades(ctx context.Context) ([]TradeRecord, error)
	GetTrade(ctx context.Context, key fieldkey.Scalar) (*TradeRecord, error)
	LockTrade(ctx context.Context, key fieldkey.Scalar, claimant string) (txID string, err error)
	EmergencyUnlock(ctx context.Context, key fieldkey.Scalar) (txID string, err error)
	GetPoolBalance(ctx context.Context) (uint64, error)
	GetActionState(ctx context.Context) (fieldkey.Scalar, error)
	GetPendingActions(ctx context.Context, since fieldkey.Scalar) ([][][]Action, error)
	Settle(ctx context.Context, proof Proof) (txID string, err error)
}

// GraphQLClient talks to a Mina-shaped node's GraphQL endpoint to read the
// zkApp's off-chain state and to submit operator transactions. Mutations
// are signed locally with the operator key before being shipped as
// already-signed transactions, mirroring a Mina node's sendZkapp flow.
type GraphQLClient struct {
	endpoint    string
	poolAddress string
	httpClient  *http.Client
	signer      Signer
	proofs      ProofSystem
	tracked     *TrackedKeyStore
	log         *logging.Logger
	requestID   atomic.Uint64
}

// Signer authorizes an operator-only mutation. Grounded on the teacher's
// wallet key-management shape, backed by secp256k1 as a stand-in for Mina's
// Pasta-Schnorr signing key (see DESIGN.md).
type Signer interface {
	Sign(payload []byte) (signature []byte, err error)
	PublicKey() string
}

// NewGraphQLClient constructs a Client bound to a Mina-shaped GraphQL
// endpoint and pool account address. tracked is the trackedKeys store
// GetActiveTrades iterates and unregisters completed slots from (spec.md
// §4.2); log defaults to the package default component logger if nil.
func NewGraphQLClient(endpoint, poolAddress string, signer Signer, proofs ProofSystem, tracked *TrackedKeyStore, log *logging.Logger) *GraphQLClient {
	if log == nil {
		log = logging.GetDefault().Component("l1")
	}
	return &GraphQLClient{
		endpoint:    endpoint,
		poolAddress: poolAddress,
		signer:      signer,
		proofs:      proofs,
		tracked:     tracked,
		log:         log,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Initialize verifies the pool account is reachable and the operator key is
// configured before the coordinator starts its poll loop.
func (c *GraphQLClient) Initialize(ctx context.Context) error {
	if c.signer == nil {
		return ErrOperatorKey
	}
	if _, err := c.GetPoolBalance(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPoolUnreachable, err)
	}
	return nil
}

// tradeSlotQuery fetches a single off-chain-map slot by key, exposing the
// map's own presence bit and completed flag so the caller can apply I1's
// filter itself rather than trust the server to have already applied it.
const tradeSlotQuery = `
query TradeSlot($pool: String!, $key: String!) {
  zkappState(publicKey: $pool) {
    tradeSlot(key: $key) {
      present
      completed
      depositor
      amount
      inTransit
      claimant
      refundAddress
      depositBlockHeight
      expiryBlockHeight
    }
  }
}`

type tradeSlotResponse struct {
	ZkappState struct {
		TradeSlot struct {
			Present            bool   `json:"present"`
			Completed          bool   `json:"completed"`
			Depositor          string `json:"depositor"`
			Amount             uint64 `json:"amount"`
			InTransit          bool   `json:"inTransit"`
			Claimant           string `json:"claimant"`
			RefundAddress      string `json:"refundAddress"`
			DepositBlockHeight uint32 `json:"depositBlockHeight"`
			ExpiryBlockHeight  uint32 `json:"expiryBlockHeight"`
		} `json:"tradeSlot"`
	} `json:"zkappState"`
}

// getTradeSlot fetches the off-chain-map slot for key and applies I1: a
// slot whose present bit is false returns (nil, false, nil); a completed
// slot returns (nil, true, nil) so the caller can unregister it.
func (c *GraphQLClient) getTradeSlot(ctx context.Context, key fieldkey.Scalar) (*TradeRecord, bool, error) {
	var resp tradeSlotResponse
	if err := c.query(ctx, tradeSlotQuery, map[string]any{"pool": c.poolAddress, "key": key.String()}, &resp); err != nil {
		return nil, false, err
	}

	slot := resp.ZkappState.TradeSlot
	if !slot.Present {
		return nil, false, nil
	}
	if slot.Completed {
		return nil, true, nil
	}

	rec := &TradeRecord{
		Key:                key,
		Depositor:          slot.Depositor,
		Amount:             slot.Amount,
		InTransit:          slot.InTransit,
		Claimant:           slot.Claimant,
		RefundAddress:      slot.RefundAddress,
		DepositBlockHeight: slot.DepositBlockHeight,
		ExpiryBlockHeight:  slot.ExpiryBlockHeight,
	}
	if err := rec.Validate(); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// GetActiveTrades iterates trackedKeys (spec.md §4.2) and fetches each
// slot individually: a slot with its present bit false is skipped (not
// yet deposited); a completed slot is skipped and unregistered; a
// root-mismatch GraphQL error is transient and swallowed for that key
// alone; any other per-key error is logged and skipped, never fatal to
// the whole call.
func (c *GraphQLClient) GetActiveTrades(ctx context.Context) ([]TradeRecord, error) {
	if c.tracked == nil {
		return nil, nil
	}

	keys := c.tracked.Keys()
	out := make([]TradeRecord, 0, len(keys))

	for _, display := range keys {
		key, err := fieldkey.FromDisplay(display)
		if err != nil {
			c.log.Warn("GetActiveTrades: invalid tracked key, skipping", "key", display, "error", err)
			continue
		}

		rec, completed, err := c.getTradeSlot(ctx, key)
		if err != nil {
			if IsTransient(err) {
				c.log.Warn("GetActiveTrades: transient error, retrying next cycle", "key", display, "error", err)
			} else {
				c.log.Warn("GetActiveTrades: per-key error, skipping", "key", display, "error", err)
			}
			continue
		}
		if completed {
			if uerr := c.tracked.UnregisterTrade(display); uerr != nil {
				c.log.Warn("GetActiveTrades: unregistering completed key failed", "key", display, "error", uerr)
			}
			continue
		}
		if rec == nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// GetTrade returns the trade record for key, or (nil, nil) if the slot is
// absent — either never deposited, or already completed and cleared (I1).
func (c *GraphQLClient) GetTrade(ctx context.Context, key fieldkey.Scalar) (*TradeRecord, error) {
	rec, completed, err := c.getTradeSlot(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("l1: GetTrade: %w", err)
	}
	if completed {
		return nil, nil
	}
	return rec, nil
}

// LockTrade submits a signed lockTrade operator transaction.
func (c *GraphQLClient) LockTrade(ctx context.Context, key fieldkey.Scalar, claimant string) (string, error) {
	return c.sendZkapp(ctx, LockTradeOp{Key: key, Claimant: claimant})
}

// EmergencyUnlock submits a signed emergencyUnlock operator transaction.
func (c *GraphQLClient) EmergencyUnlock(ctx context.Context, key fieldkey.Scalar) (string, error) {
	return c.sendZkapp(ctx, EmergencyUnlockOp{Key: key})
}

// Settle submits a signed settle operator transaction carrying proof.
func (c *GraphQLClient) Settle(ctx context.Context, proof Proof) (string, error) {
	return c.sendZkapp(ctx, SettleOp{Proof: proof})
}

const poolBalanceQuery = `
query PoolBalance($pool: String!) {
  account(publicKey: $pool) {
    balance { total }
  }
}`

func (c *GraphQLClient) GetPoolBalance(ctx context.Context) (uint64, error) {
	var resp struct {
		Account struct {
			Balance struct {
				Total uint64 `json:"total"`
			} `json:"balance"`
		} `json:"account"`
	}
	if err := c.query(ctx, poolBalanceQuery, map[string]any{"pool": c.poolAddress}, &resp); err != nil {
		return 0, fmt.Errorf("l1: GetPoolBalance: %w", err)
	}
	return resp.Account.Balance.Total, nil
}

const actionStateQuery = `
query ActionState($pool: String!) {
  account(publicKey: $pool) {
    zkappState { actionState }
  }
}`

func (c *GraphQLClient) GetActionState(ctx context.Context) (fieldkey.Scalar, error) {
	var resp struct {
		Account struct {
			ZkappState struct {
				ActionState string `json:"actionState"`
			} `json:"zkappState"`
		} `json:"account"`
	}
	if err := c.query(ctx, actionStateQuery, map[string]any{"pool": c.poolAddress}, &resp); err != nil {
		return fieldkey.Scalar{}, fmt.Errorf("l1: GetActionState: %w", err)
	}
	return fieldkey.FromHex(resp.Account.ZkappState.ActionState)
}

const pendingActionsQuery = `
query PendingActions($pool: String!, $since: String!) {
  actions(publicKey: $pool, fromActionState: $since) {
    kind
    key
  }
}`

// GetPendingActions returns every action emitted since the action state
// since, grouped the way a Mina archive node groups them: one outer slice
// per account-update batch, one inner slice per zkApp-call group within it.
func (c *GraphQLClient) GetPendingActions(ctx context.Context, since fieldkey.Scalar) ([][][]Action, error) {
	var resp struct {
		Actions []struct {
			Kind string `json:"kind"`
			Key  string `json:"key"`
		} `json:"actions"`
	}
	if err := c.query(ctx, pendingActionsQuery, map[string]any{"pool": c.poolAddress, "since": since.String()}, &resp); err != nil {
		return nil, fmt.Errorf("l1: GetPendingActions: %w", err)
	}
	if len(resp.Actions) == 0 {
		return nil, nil
	}

	actions := make([]Action, 0, len(resp.Actions))
	for _, a := range resp.Actions {
		key, err := fieldkey.FromHex(a.Key)
		if err != nil {
			return nil, fmt.Errorf("l1: GetPendingActions: %w", err)
		}
		actions = append(actions, Action{Kind: a.Kind, Key: key})
	}
	// A GraphQL node reports one flat batch per poll in practice; the
	// nested shape exists so the settlement worker's pending-action count
	// matches a real archive node's grouped response.
	return [][][]Action{{actions}}, nil
}

// sendZkapp signs op with the operator key, attaches its proof, and
// submits both as a single already-signed transaction, the way a Mina
// node's sendZkapp mutation expects a proof-carrying account update to
// arrive (spec.md §4.2's proof-carrying-submission discipline).
func (c *GraphQLClient) sendZkapp(ctx context.Context, op Operation) (string, error) {
	if c.signer == nil {
		return "", ErrOperatorKey
	}

	payload, err := encodeOperation(op)
	if err != nil {
		return "", fmt.Errorf("l1: encoding operation: %w", err)
	}
	sig, err := c.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("l1: signing operation: %w", err)
	}
	proof, err := c.proofFor(op)
	if err != nil {
		return "", fmt.Errorf("l1: proving operation: %w", err)
	}

	const mutation = `
mutation SendZkapp($pool: String!, $payload: String!, $signature: String!, $sender: String!, $proof: String!, $publicInput: String!) {
  sendZkapp(input: {publicKey: $pool, payload: $payload, signature: $signature, sender: $sender, proof: $proof, publicInput: $publicInput}) {
    zkapp { id }
  }
}`
	vars := map[string]any{
		"pool":        c.poolAddress,
		"payload":     fmt.Sprintf("%x", payload),
		"signature":   fmt.Sprintf("%x", sig),
		"sender":      c.signer.PublicKey(),
		"proof":       fmt.Sprintf("%x", proof.Commitment),
		"publicInput": fmt.Sprintf("%x", proof.PublicInputDigest),
	}

	var resp struct {
		SendZkapp struct {
			Zkapp struct {
				ID string `json:"id"`
			} `json:"zkapp"`
		} `json:"sendZkapp"`
	}
	if err := c.query(ctx, mutation, vars, &resp); err != nil {
		return "", err
	}
	if resp.SendZkapp.Zkapp.ID == "" {
		return "", ErrNoTxID
	}
	return resp.SendZkapp.Zkapp.ID, nil
}

// proofFor returns the proof a sendZkapp submission carries. A settle
// mutation arrives with its proof already generated by the settlement
// worker over a batch of pending actions (ProveSettle); lockTrade and
// emergencyUnlock instead generate their single-mutation proof here,
// immediately before signing.
func (c *GraphQLClient) proofFor(op Operation) (Proof, error) {
	if s, ok := op.(SettleOp); ok {
		return s.Proof, nil
	}
	return c.proofs.ProveMutation(op)
}

// encodeOperation produces the deterministic byte payload a real zkApp
// transaction would sign over: the operation tag followed by its fields,
// in the order the contract's method dispatch expects them.
func encodeOperation(op Operation) ([]byte, error) {
	switch o := op.(type) {
	case LockTradeOp:
		key := o.Key.Bytes()
		return append(append([]byte("lockTrade:"), key[:]...), []byte(o.Claimant)...), nil
	case EmergencyUnlockOp:
		key := o.Key.Bytes()
		return append([]byte("emergencyUnlock:"), key[:]...), nil
	case SettleOp:
		return append([]byte("settle:"), o.Proof.Commitment...), nil
	default:
		return nil, fmt.Errorf("l1: unknown operation type %T", op)
	}
}

// query issues a single GraphQL request and decodes its "data" field into
// out, following the same request/response envelope shape as the teacher's
// JSON-RPC call helper (net/http + context + json.RawMessage-style
// decoding), adapted to GraphQL's query/variables/data envelope.
func (c *GraphQLClient) query(ctx context.Context, query string, variables map[string]any, out any) error {
	c.requestID.Add(1)

	body, err := json.Marshal(struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{Query: query, Variables: variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message    string `json:"message"`
			Extensions struct {
				Code string `json:"code"`
			} `json:"extensions"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		return &GraphQLError{Message: first.Message, Code: first.Extensions.Code}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

var _ Client = (*GraphQLClient)(nil)
