package codec

import (
	"bytes"
	"testing"
)

type record struct {
	_     struct{} `cbor:",toarray"`
	ID    uint64
	Name  string
	Key   [4]byte
	Items [][4]byte
}

func TestMarshalIsDeterministic(t *testing.T) {
	m := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	first, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Marshal(m)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("map encoding changed between calls")
		}
	}
}

func TestToArrayLayout(t *testing.T) {
	r := record{ID: 1, Name: "a", Key: [4]byte{1, 2, 3, 4}}
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// array(4), uint 1, text "a", bytes(4) 01020304, null
	want := []byte{0x84, 0x01, 0x61, 'a', 0x44, 1, 2, 3, 4, 0xf6}
	if !bytes.Equal(data, want) {
		t.Fatalf("encoding %x, want %x", data, want)
	}

	var back record
	if err := Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != 1 || back.Name != "a" || back.Key != r.Key {
		t.Fatalf("decoded %+v", back)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := Marshal(uint64(7))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var v uint64
	if err := Unmarshal(append(data, 0x00), &v); err == nil {
		t.Fatal("trailing bytes accepted")
	}
	if err := Unmarshal(data, &v); err != nil || v != 7 {
		t.Fatalf("Unmarshal = %d, %v", v, err)
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	data := []byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	var m map[string]int
	if err := Unmarshal(data, &m); err == nil {
		t.Fatal("duplicate map key accepted")
	}
}
