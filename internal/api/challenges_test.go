package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stryd.mini/ledger/internal/challenge"
	"stryd.mini/ledger/internal/identity"
	"stryd.mini/ledger/internal/types"
)

func TestHandleChallenge(t *testing.T) {
	f := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/challenge?creator="+f.creator.Pubkey().String()+"&id=1", nil)
	w := httptest.NewRecorder()
	f.svc.HandleChallenge(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d: %s", w.Code, w.Body.String())
	}
	var res challenge.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Address != f.machine.Address(f.creator.Pubkey(), 1) {
		t.Fatalf("address %s", res.Address)
	}
	if len(res.Challenge.Participants) != 1 || res.Challenge.Participants[0] != f.joiner.Pubkey() {
		t.Fatalf("participants %v", res.Challenge.Participants)
	}
	if res.Challenge.Status != types.StatusOpen {
		t.Fatalf("status %s", res.Challenge.Status)
	}
}

func TestHandleChallengeByAddress(t *testing.T) {
	f := setupTest(t)
	addr := f.machine.Address(f.creator.Pubkey(), 2)

	w := httptest.NewRecorder()
	f.svc.HandleChallenge(w, httptest.NewRequest(http.MethodGet, "/api/challenge?address="+addr.Hex(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleChallengeErrors(t *testing.T) {
	f := setupTest(t)
	creator := f.creator.Pubkey().String()

	cases := []struct {
		name   string
		method string
		query  string
		status int
	}{
		{"missing", http.MethodGet, "creator=" + creator + "&id=3", http.StatusNotFound},
		{"bad creator", http.MethodGet, "creator=nope&id=1", http.StatusBadRequest},
		{"bad id", http.MethodGet, "creator=" + creator + "&id=-1", http.StatusBadRequest},
		{"bad address", http.MethodGet, "address=xyz0", http.StatusBadRequest},
		{"post", http.MethodPost, "creator=" + creator + "&id=1", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.svc.HandleChallenge(w, httptest.NewRequest(tc.method, "/api/challenge?"+tc.query, nil))
			if w.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	f.svc.HandleChallenge(w, httptest.NewRequest(http.MethodGet, "/api/challenge?creator="+creator+"&id=3", nil))
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["kind"] != "ChallengeNotFound" || body["code"] != float64(challenge.CodeChallengeNotFound) {
		t.Fatalf("error body %v", body)
	}
}

func TestHandleChallenges(t *testing.T) {
	f := setupTest(t)

	w := httptest.NewRecorder()
	f.svc.HandleChallenges(w, httptest.NewRequest(http.MethodGet, "/api/challenges", nil))
	var all []challenge.Result
	if err := json.NewDecoder(w.Body).Decode(&all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 challenges, got %d", len(all))
	}

	w = httptest.NewRecorder()
	f.svc.HandleChallenges(w, httptest.NewRequest(http.MethodGet, "/api/challenges?creator="+f.joiner.Pubkey().String(), nil))
	if w.Body.String() != "[]\n" {
		t.Fatalf("joiner owns no challenges, got %s", w.Body.String())
	}
}

func TestHandleAddress(t *testing.T) {
	f := setupTest(t)
	other, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	for _, tc := range []struct {
		creator types.Pubkey
		exists  bool
	}{
		{f.creator.Pubkey(), true},
		{other.Pubkey(), false},
	} {
		w := httptest.NewRecorder()
		f.svc.HandleAddress(w, httptest.NewRequest(http.MethodGet, "/api/address?creator="+tc.creator.Hex()+"&id=1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status %d: %s", w.Code, w.Body.String())
		}
		var body struct {
			Address types.Address `json:"address"`
			Bump    uint8         `json:"bump"`
			Exists  bool          `json:"exists"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Address != f.machine.Address(tc.creator, 1) || body.Exists != tc.exists {
			t.Fatalf("unexpected answer %+v", body)
		}
	}
}
