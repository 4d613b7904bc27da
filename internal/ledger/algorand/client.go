// Package algorand adapts the ledger.Client interface to an Algorand
// application. Writes go through the ABI method surface of the registry
// contract inside an atomic group with the storage payment; reads fetch and
// decode the contract's boxes directly, which costs nothing and needs no
// signer.
package algorand

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/algorand/go-algorand-sdk/v2/abi"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"genmark/internal/domain"
	"genmark/internal/ledger"
	"genmark/internal/platform/config"
)

const (
	registerMethodSig = "register_content(string,string,string,string,string,pay)uint64"
	flagMethodSig     = "flag_misuse(string,string,pay)uint64"

	// waitRounds bounds how long Execute waits for confirmation before the
	// call surfaces as a timeout.
	waitRounds = 4
)

// Client implements ledger.Client against a deployed registry application.
type Client struct {
	algod      *algod.Client
	appID      uint64
	appAddress types.Address

	account crypto.Account
	signer  transaction.TransactionSigner

	registerMethod abi.Method
	flagMethod     abi.Method

	logger *slog.Logger
}

// New constructs the adapter. The signer mnemonic may be empty for read-only
// deployments; writes then fail with ErrRejected.
func New(cfg config.AlgodConfig, logger *slog.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("ledger application ID is not set; deploy the contract first")
	}

	ac, err := algod.MakeClient(cfg.URL(), cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("algod client: %w", err)
	}

	c := &Client{
		algod:      ac,
		appID:      cfg.AppID,
		appAddress: crypto.GetApplicationAddress(cfg.AppID),
		logger:     logger,
	}

	if c.registerMethod, err = abi.MethodFromSignature(registerMethodSig); err != nil {
		return nil, fmt.Errorf("register method: %w", err)
	}
	if c.flagMethod, err = abi.MethodFromSignature(flagMethodSig); err != nil {
		return nil, fmt.Errorf("flag method: %w", err)
	}

	if cfg.SignerMnemonic != "" {
		sk, err := mnemonic.ToPrivateKey(cfg.SignerMnemonic)
		if err != nil {
			return nil, fmt.Errorf("signer mnemonic: %w", err)
		}
		c.account, err = crypto.AccountFromPrivateKey(sk)
		if err != nil {
			return nil, fmt.Errorf("signer account: %w", err)
		}
		c.signer = transaction.BasicAccountTransactionSigner{Account: c.account}
	}

	return c, nil
}

func (c *Client) Write(ctx context.Context, req ledger.WriteRequest) (ledger.WriteResult, error) {
	if c.signer == nil {
		return ledger.WriteResult{}, fmt.Errorf("%w: no signing account configured", ledger.ErrRejected)
	}

	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return ledger.WriteResult{}, mapCallError(ctx, err)
	}

	payTxn, err := transaction.MakePaymentTxn(
		c.account.Address.String(), c.appAddress.String(), req.Payment, nil, "", sp)
	if err != nil {
		return ledger.WriteResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	// Flat double fee pools the inner transaction that mints the ownership
	// credential.
	callParams := sp
	callParams.FlatFee = true
	callParams.Fee = types.MicroAlgos(2 * transaction.MinTxnFee)

	parent := ""
	if req.Parent != nil {
		parent = req.Parent.String()
	}

	var atc transaction.AtomicTransactionComposer
	err = atc.AddMethodCall(transaction.AddMethodCallParams{
		AppID:  c.appID,
		Method: c.registerMethod,
		MethodArgs: []interface{}{
			req.Fingerprint.String(),
			req.CreatorID,
			req.ContributorID,
			req.Platform,
			parent,
			transaction.TransactionWithSigner{Txn: payTxn, Signer: c.signer},
		},
		Sender:          c.account.Address,
		SuggestedParams: callParams,
		Signer:          c.signer,
		BoxReferences: []types.AppBoxReference{
			{AppID: c.appID, Name: registryBoxKey(req.Fingerprint)},
		},
	})
	if err != nil {
		return ledger.WriteResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	res, err := atc.Execute(c.algod, ctx, waitRounds)
	if err != nil {
		return ledger.WriteResult{}, mapCallError(ctx, err)
	}
	if len(res.MethodResults) == 0 {
		return ledger.WriteResult{}, fmt.Errorf("%w: empty method results", ledger.ErrRejected)
	}

	token, err := abiUint64(res.MethodResults[0].ReturnValue)
	if err != nil {
		return ledger.WriteResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	// Read the committed record back so the result carries the
	// ledger-assigned timestamp rather than a client-side guess.
	rec, err := c.Read(ctx, req.Fingerprint)
	if err != nil {
		return ledger.WriteResult{}, err
	}
	rec.OwnershipToken = token

	c.logger.InfoContext(ctx, "ledger write confirmed",
		"fingerprint", req.Fingerprint.String(),
		"ownership_token", token,
		"round", res.ConfirmedRound,
	)

	return ledger.WriteResult{
		Record:  rec,
		Receipt: ledger.Receipt{TxID: res.MethodResults[0].TxID, ConfirmedRound: res.ConfirmedRound},
	}, nil
}

func (c *Client) Read(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error) {
	box, err := c.algod.GetApplicationBoxByName(c.appID, registryBoxKey(fp)).Do(ctx)
	if err != nil {
		return domain.ContentRecord{}, mapCallError(ctx, err)
	}
	return decodeContentRecord(fp, box.Value)
}

func (c *Client) AppendFlag(ctx context.Context, req ledger.FlagRequest) (ledger.FlagResult, error) {
	if c.signer == nil {
		return ledger.FlagResult{}, fmt.Errorf("%w: no signing account configured", ledger.ErrRejected)
	}

	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return ledger.FlagResult{}, mapCallError(ctx, err)
	}

	payTxn, err := transaction.MakePaymentTxn(
		c.account.Address.String(), c.appAddress.String(), req.Payment, nil, "", sp)
	if err != nil {
		return ledger.FlagResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	var atc transaction.AtomicTransactionComposer
	err = atc.AddMethodCall(transaction.AddMethodCallParams{
		AppID:  c.appID,
		Method: c.flagMethod,
		MethodArgs: []interface{}{
			req.Fingerprint.String(),
			req.Description,
			transaction.TransactionWithSigner{Txn: payTxn, Signer: c.signer},
		},
		Sender:          c.account.Address,
		SuggestedParams: sp,
		Signer:          c.signer,
		BoxReferences: []types.AppBoxReference{
			{AppID: c.appID, Name: registryBoxKey(req.Fingerprint)},
		},
	})
	if err != nil {
		return ledger.FlagResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	res, err := atc.Execute(c.algod, ctx, waitRounds)
	if err != nil {
		return ledger.FlagResult{}, mapCallError(ctx, err)
	}
	if len(res.MethodResults) == 0 {
		return ledger.FlagResult{}, fmt.Errorf("%w: empty method results", ledger.ErrRejected)
	}

	index, err := abiUint64(res.MethodResults[0].ReturnValue)
	if err != nil {
		return ledger.FlagResult{}, fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	}

	c.logger.InfoContext(ctx, "misuse flag confirmed",
		"fingerprint", req.Fingerprint.String(),
		"flag_index", index,
		"round", res.ConfirmedRound,
	)

	return ledger.FlagResult{
		Index:   index,
		Receipt: ledger.Receipt{TxID: res.MethodResults[0].TxID, ConfirmedRound: res.ConfirmedRound},
	}, nil
}

func (c *Client) ReadFlag(ctx context.Context, fp domain.Fingerprint, index uint64) (string, error) {
	box, err := c.algod.GetApplicationBoxByName(c.appID, flagBoxKey(fp, index)).Do(ctx)
	if err != nil {
		return "", mapCallError(ctx, err)
	}
	return decodeFlagValue(box.Value)
}

// mapCallError translates node errors into the ledger taxonomy. Context
// expiry and transport failures are timeouts (the write may have landed);
// contract assertion failures are terminal.
func mapCallError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "box not found") || strings.Contains(msg, "no application boxes found"):
		return ledger.ErrNotFound
	case strings.Contains(msg, "already been registered"):
		return fmt.Errorf("%w: %v", ledger.ErrDuplicate, err)
	case strings.Contains(msg, "assert failed") || strings.Contains(msg, "logic eval error"):
		return fmt.Errorf("%w: %v", ledger.ErrRejected, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	default:
		return fmt.Errorf("ledger call failed: %w", err)
	}
}
