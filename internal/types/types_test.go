package types_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"stryd.mini/ledger/internal/identity"
	"stryd.mini/ledger/internal/types"
)

func TestTransactionSigning(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Failed to create test identity: %v", err)
	}

	tx, err := types.NewTransaction(types.TxCreateChallenge, types.CreateChallengePayload{
		ChallengeID: 1,
		ParamA:      1,
		ParamB:      10,
		Name:        "Challenge 1",
	})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if tx.Nonce == "" {
		t.Fatal("expected a nonce")
	}

	signedTx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}
	if !signedTx.Verify() {
		t.Fatal("Failed to verify transaction signature")
	}

	wire, err := json.Marshal(signedTx)
	if err != nil {
		t.Fatalf("marshal signed tx: %v", err)
	}
	decoded, err := types.DecodeSignedTransaction(wire)
	if err != nil {
		t.Fatalf("DecodeSignedTransaction: %v", err)
	}
	if !decoded.Verify() {
		t.Fatal("signature did not survive the wire")
	}

	signer, err := decoded.SignerKey()
	if err != nil {
		t.Fatalf("SignerKey: %v", err)
	}
	if signer != id.Pubkey() {
		t.Fatalf("signer %s, want %s", signer, id.Pubkey())
	}

	extracted, err := decoded.GetTransaction()
	if err != nil {
		t.Fatalf("Failed to extract transaction: %v", err)
	}
	payload, err := extracted.DecodeCreatePayload()
	if err != nil {
		t.Fatalf("DecodeCreatePayload: %v", err)
	}
	if payload.Name != "Challenge 1" || payload.ParamB != 10 {
		t.Errorf("payload mismatch: %+v", payload)
	}
	if _, err := extracted.DecodeJoinPayload(); err == nil {
		t.Error("expected type mismatch decoding a create tx as join")
	}
}

func TestTamperedTransactionFailsVerify(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	tx, err := types.NewTransaction(types.TxJoinChallenge, types.JoinChallengePayload{ChallengeID: 1, Creator: id.Pubkey()})
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	stx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	stx.Tx = bytes.Replace(stx.Tx, []byte(`"challenge_id":1`), []byte(`"challenge_id":2`), 1)
	if stx.Verify() {
		t.Fatal("tampered body verified")
	}

	stx.PublicKey = stx.PublicKey[:10]
	if stx.Verify() {
		t.Fatal("short public key verified")
	}
}

func TestJoinPayloadCreatorEncoding(t *testing.T) {
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	raw, err := json.Marshal(types.JoinChallengePayload{ChallengeID: 7, Creator: id.Pubkey()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(raw, []byte(id.Pubkey().String())) {
		t.Fatalf("creator should be base58 in JSON: %s", raw)
	}

	// Hex is accepted as well.
	hexJSON := []byte(`{"challenge_id":7,"creator":"` + id.Pubkey().Hex() + `"}`)
	var p types.JoinChallengePayload
	if err := json.Unmarshal(hexJSON, &p); err != nil {
		t.Fatalf("unmarshal hex creator: %v", err)
	}
	if p.Creator != id.Pubkey() {
		t.Fatalf("creator %s, want %s", p.Creator, id.Pubkey())
	}
}

func TestParseKeys(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "base58", input: "ADPCeyuUkasdBcnGRDoFR4ZzmGKbsjtLW9KJwMpdX5Ce"},
		{name: "hex", input: "0000000000000000000000000000000000000000000000000000000000000001"},
		{name: "empty", input: "", wantErr: true},
		{name: "short hex", input: "00ff", wantErr: true},
		{name: "bad base58", input: "0OIl", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pk, err := types.ParsePubkey(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParsePubkey(%q) err = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if err != nil {
				return
			}
			again, err := types.ParsePubkey(pk.String())
			if err != nil || again != pk {
				t.Fatalf("String round trip: %v %s", err, again)
			}
			addr, err := types.ParseAddress(tc.input)
			if err != nil || addr.Hex() != pk.Hex() {
				t.Fatalf("ParseAddress disagrees: %v", err)
			}
		})
	}
}

func TestParticipantSet(t *testing.T) {
	a, err := identity.FromSeed(bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	b, err := identity.FromSeed(bytes.Repeat([]byte{2}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}

	var set types.ParticipantSet
	if set.Contains(a.Pubkey()) {
		t.Fatal("empty set contains a")
	}
	if !set.Add(a.Pubkey()) || !set.Add(b.Pubkey()) {
		t.Fatal("first adds should succeed")
	}
	if set.Add(a.Pubkey()) {
		t.Fatal("second add of a should fail")
	}
	if len(set) != 2 || set[0] != a.Pubkey() || set[1] != b.Pubkey() {
		t.Fatalf("unexpected set %v", set)
	}
}

func TestChallengeRecordEncoding(t *testing.T) {
	creator, err := identity.FromSeed(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	joiner, err := identity.FromSeed(bytes.Repeat([]byte{4}, 32))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	record := &types.Challenge{
		Creator:      creator.Pubkey(),
		ChallengeID:  1,
		ParamA:       1,
		ParamB:       10,
		Name:         "Challenge 1",
		Status:       types.StatusOpen,
		Participants: types.ParticipantSet{joiner.Pubkey()},
		Bump:         254,
	}

	first, err := types.EncodeChallenge(record)
	if err != nil {
		t.Fatalf("EncodeChallenge: %v", err)
	}
	second, err := types.EncodeChallenge(record)
	if err != nil {
		t.Fatalf("EncodeChallenge: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("encoding is not deterministic")
	}
	if !bytes.Equal(first[:types.DiscriminatorLength], types.ChallengeDiscriminator[:]) {
		t.Fatal("missing discriminator")
	}
	if types.KindOf(first) != types.KindChallenge {
		t.Fatalf("KindOf = %q", types.KindOf(first))
	}

	decoded, err := types.DecodeChallenge(first)
	if err != nil {
		t.Fatalf("DecodeChallenge: %v", err)
	}
	if decoded.Creator != record.Creator || decoded.Name != record.Name || decoded.Bump != 254 ||
		len(decoded.Participants) != 1 || decoded.Participants[0] != joiner.Pubkey() {
		t.Fatalf("decoded %+v", decoded)
	}

	empty := *record
	empty.Participants = nil
	data, err := types.EncodeChallenge(&empty)
	if err != nil {
		t.Fatalf("EncodeChallenge: %v", err)
	}
	decoded, err = types.DecodeChallenge(data)
	if err != nil {
		t.Fatalf("DecodeChallenge: %v", err)
	}
	if decoded.Participants == nil {
		t.Fatal("participants should decode to an empty set")
	}

	wrong := append([]byte("xxxxxxxx"), first[types.DiscriminatorLength:]...)
	if _, err := types.DecodeChallenge(wrong); !errors.Is(err, types.ErrWrongRecordKind) {
		t.Fatalf("wrong discriminator: got %v", err)
	}
	if _, err := types.DecodeChallenge(first[:4]); err == nil {
		t.Fatal("short record decoded")
	}
	if _, err := types.DecodeChallenge(append(first, 0x00)); err == nil {
		t.Fatal("trailing byte accepted")
	}
}

func TestChallengeJSON(t *testing.T) {
	record := types.Challenge{Name: "x", Status: types.StatusSettled, Participants: types.ParticipantSet{}}
	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"status":"settled"`)) {
		t.Fatalf("status should marshal by name: %s", raw)
	}
	var back types.Challenge
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Status != types.StatusSettled || back.IsOpen() {
		t.Fatalf("status round trip: %s", back.Status)
	}
}
