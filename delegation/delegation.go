// Package delegation is the Delegation Verifier (C4): it confirms a hot
// wallet is authorized to spend on behalf of an operator's smart account by
// walking the access-list -> signers note chain.
package delegation

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/hypergrid-io/hypergrid/chain"
)

// Status is the sum type returned by Verify (spec §4.4).
type Status struct {
	Kind   StatusKind
	Reason string // populated for the *Error/*Invalid variants
}

type StatusKind int

const (
	Verified StatusKind = iota
	NeedsIdentity
	NeedsHotWallet
	AccessListNoteMissing
	AccessListNoteInvalidData
	SignersNoteLookupError
	SignersNoteMissing
	SignersNoteInvalidData
	HotWalletNotInList
	CheckError
)

func (s Status) OK() bool { return s.Kind == Verified }

// Verifier reads access-list and signers notes off the registry contract.
type Verifier struct {
	notes *chain.NoteReader
}

func NewVerifier(notes *chain.NoteReader) *Verifier {
	return &Verifier{notes: notes}
}

var addressSliceArgs = abi.Arguments{{Type: mustAddressSliceType()}}

func mustAddressSliceType() abi.Type {
	t, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Verify implements spec §4.4's algorithm exactly: read
// `~access-list.<operator_entry>`, interpret its 32-byte payload as a
// signers-note namehash, fetch and ABI-decode that note as address[], and
// check hotWallet's membership.
func (v *Verifier) Verify(ctx context.Context, operatorEntry string, hotWallet common.Address) Status {
	if operatorEntry == "" {
		return Status{Kind: NeedsIdentity}
	}
	if hotWallet == (common.Address{}) {
		return Status{Kind: NeedsHotWallet}
	}

	accessListPath := "~access-list." + operatorEntry
	accessListData, err := v.notes.GetByPath(ctx, accessListPath)
	if err != nil {
		return Status{Kind: CheckError, Reason: fmt.Sprintf("reading access-list note: %v", err)}
	}
	if accessListData == nil {
		return Status{Kind: AccessListNoteMissing}
	}
	if len(accessListData) != 32 {
		return Status{Kind: AccessListNoteInvalidData, Reason: fmt.Sprintf("expected 32 bytes, got %d", len(accessListData))}
	}
	signersHash := common.BytesToHash(accessListData)

	signersData, err := v.notes.GetByHash(ctx, signersHash)
	if err != nil {
		return Status{Kind: SignersNoteLookupError, Reason: err.Error()}
	}
	if signersData == nil {
		return Status{Kind: SignersNoteMissing}
	}

	delegates, err := decodeAddressList(signersData)
	if err != nil {
		return Status{Kind: SignersNoteInvalidData, Reason: err.Error()}
	}

	for _, d := range delegates {
		if d == hotWallet {
			return Status{Kind: Verified}
		}
	}
	return Status{Kind: HotWalletNotInList}
}

// ListAllDelegated returns the decoded address set for operatorEntry, for
// graph/onboarding displays. A missing access-list note is not an error —
// the operator simply has no delegates yet.
func (v *Verifier) ListAllDelegated(ctx context.Context, operatorEntry string) ([]common.Address, error) {
	accessListData, err := v.notes.GetByPath(ctx, "~access-list."+operatorEntry)
	if err != nil {
		return nil, fmt.Errorf("reading access-list note: %w", err)
	}
	if accessListData == nil || len(accessListData) != 32 {
		return nil, nil
	}
	signersData, err := v.notes.GetByHash(ctx, common.BytesToHash(accessListData))
	if err != nil {
		return nil, fmt.Errorf("reading signers note: %w", err)
	}
	if signersData == nil {
		return nil, nil
	}
	return decodeAddressList(signersData)
}

// decodeAddressList ABI-decodes data as address[], tolerating lenient
// (non-canonical) padding per spec §4.4.
func decodeAddressList(data []byte) ([]common.Address, error) {
	values, err := addressSliceArgs.UnpackValues(data)
	if err != nil {
		return nil, fmt.Errorf("abi-decode address[]: %w", err)
	}
	addrs, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("decoded value is not address[]")
	}
	return addrs, nil
}
