package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strings"
	"testing"
)

func testUID(frac uint32) UniqueID {
	return UniqueID{Addr: netip.MustParseAddr("18.7.22.69"), Sec: 1700000000, Frac: frac}
}

func sameNotice(t *testing.T, want, got *Notice) {
	t.Helper()
	wantCopy, gotCopy := want.Clone(), got.Clone()
	for _, n := range []*Notice{wantCopy, gotCopy} {
		n.message = nil
		n.signed = nil
		n.fragment = nil
		n.Authenticated = AuthUnchecked
		if len(n.Body) == 0 {
			n.Body = nil
		}
		if len(n.OtherFields) == 0 {
			n.OtherFields = nil
		}
		if len(n.Authenticator) == 0 {
			n.Authenticator = nil
		}
		if len(n.Checksum) == 0 {
			n.Checksum = nil
		}
	}
	if !reflect.DeepEqual(wantCopy, gotCopy) {
		t.Fatalf("notice mismatch\nwant: %+v\ngot:  %+v", wantCopy, gotCopy)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		notice *Notice
	}{
		{
			name: "personal message",
			notice: &Notice{
				Kind:          Acked,
				UID:           testUID(1),
				Port:          2104,
				Auth:          true,
				Authenticator: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01},
				Class:         "message",
				Instance:      "personal",
				Opcode:        "PING",
				Sender:        "alice@ATHENA.MIT.EDU",
				Recipient:     "bob@ATHENA.MIT.EDU",
				DefaultFormat: DefaultFormat,
				Checksum:      []byte{0x00, 0xFF, 0x41, 0xFF, 0xF0},
				MultiUID:      testUID(1),
				Body:          [][]byte{[]byte("alice"), []byte("hello there")},
			},
		},
		{
			name: "empty body",
			notice: &Notice{
				Kind:  Unsafe,
				UID:   testUID(2),
				Class: "message",
			},
		},
		{
			name: "single empty body field",
			notice: &Notice{
				Kind: Unacked,
				UID:  testUID(3),
				Body: [][]byte{{}},
			},
		},
		{
			name: "trailing empty body field",
			notice: &Notice{
				Kind: Unacked,
				UID:  testUID(4),
				Body: [][]byte{[]byte("a"), {}},
			},
		},
		{
			name: "maximum other fields",
			notice: &Notice{
				Kind:        ServAck,
				UID:         testUID(5),
				OtherFields: []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
				Body:        [][]byte{[]byte("x")},
			},
		},
		{
			name: "fragment header",
			notice: &Notice{
				Kind:        Acked,
				UID:         testUID(7),
				MultiNotice: "512/2048",
				MultiUID:    testUID(6),
				Body:        [][]byte{[]byte("chunk")},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			packet, err := tc.notice.Encode()
			if err != nil {
				t.Fatalf("unexpected encode error: %v", err)
			}
			decoded, err := Decode(packet)
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			sameNotice(t, tc.notice, decoded)

			again, err := decoded.Encode()
			if err != nil {
				t.Fatalf("unexpected re-encode error: %v", err)
			}
			if !bytes.Equal(packet, again) {
				t.Fatalf("re-encoded packet differs\nfirst:  %q\nsecond: %q", packet, again)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	notice := &Notice{
		Kind:      Acked,
		UID:       testUID(1),
		Port:      0x1234,
		Class:     "c",
		Instance:  "i",
		Recipient: "r",
		Body:      [][]byte{[]byte("b")},
	}
	packet, err := notice.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}

	fields := strings.Split(string(packet), "\x00")
	expected := []string{
		"ZEPH0.2",
		"0x00000011",
		"0x00000002",
		"0x12071645 0x6553F100 0x00000001",
		"0x1234",
		"0x00000000",
		"0x00000000",
		"",
		"c", "i", "", "", "r", "",
		"Z",
		"",
		"0x00000000 0x00000000 0x00000000",
		"b",
		"",
	}
	if !reflect.DeepEqual(fields, expected) {
		t.Fatalf("unexpected layout\nwant: %q\ngot:  %q", expected, fields)
	}
}

func TestEncodeRejects(t *testing.T) {
	testCases := []struct {
		name   string
		notice *Notice
	}{
		{
			name:   "too many other fields",
			notice: &Notice{OtherFields: make([]string, MaxOtherFields+1)},
		},
		{
			name:   "NUL in class",
			notice: &Notice{Class: "bad\x00class"},
		},
		{
			name:   "NUL in body field",
			notice: &Notice{Body: [][]byte{[]byte("a\x00b")}},
		},
		{
			name:   "unknown kind",
			notice: &Notice{Kind: Stat + 1},
		},
		{
			name:   "IPv6 uid",
			notice: &Notice{UID: UniqueID{Addr: netip.MustParseAddr("::1"), Sec: 5, Frac: 1}},
		},
		{
			name:   "uid without address",
			notice: &Notice{UID: UniqueID{Sec: 5, Frac: 1}},
		},
		{
			name:   "IPv6 multiuid",
			notice: &Notice{UID: testUID(1), MultiUID: UniqueID{Addr: netip.MustParseAddr("fe80::1"), Sec: 5}},
		},
		{
			name:   "uid fraction out of range",
			notice: &Notice{UID: UniqueID{Addr: netip.MustParseAddr("10.0.0.1"), Sec: 5, Frac: 100000}},
		},
		{
			name:   "oversized datagram",
			notice: &Notice{Body: [][]byte{bytes.Repeat([]byte("x"), MaxDatagramLen)}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.notice.Encode()
			if !errors.Is(err, ErrMalformedNotice) {
				t.Fatalf("expected ErrMalformedNotice, got %v", err)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	valid, err := (&Notice{Kind: Acked, UID: testUID(1), Body: [][]byte{[]byte("x")}}).Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	replaceField := func(index int, value string) []byte {
		fields := bytes.Split(valid, []byte{0})
		fields[index] = []byte(value)
		return bytes.Join(fields, []byte{0})
	}

	testCases := []struct {
		name   string
		packet []byte
	}{
		{name: "empty", packet: nil},
		{name: "wrong version", packet: replaceField(fieldVersion, "ZEPH9.9")},
		{name: "truncated header", packet: valid[:40]},
		{name: "field count below minimum", packet: replaceField(fieldNumFields, "0x00000003")},
		{name: "eleven other fields", packet: replaceField(fieldNumFields, fmt.Sprintf("0x%08X", fixedHeaderFields+MaxOtherFields+1))},
		{name: "non hex kind", packet: replaceField(fieldKind, "ACKED")},
		{name: "unknown kind", packet: replaceField(fieldKind, "0x00000042")},
		{name: "short uid", packet: replaceField(fieldUID, "0x01020304")},
		{name: "authenticator length mismatch", packet: replaceField(fieldAuthLen, "0x00000004")},
		{name: "checksum without prefix", packet: replaceField(fieldChecksum, "abc")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			notice, err := Decode(tc.packet)
			if !errors.Is(err, ErrMalformedNotice) {
				t.Fatalf("expected ErrMalformedNotice, got %v", err)
			}
			if notice != nil {
				t.Fatalf("expected no notice alongside the error, got %+v", notice)
			}
		})
	}
}

func TestDecodeBodyWithoutFinalTerminator(t *testing.T) {
	packet, err := (&Notice{UID: testUID(1), Body: [][]byte{[]byte("one"), []byte("two")}}).Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := Decode(packet[:len(packet)-1])
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(decoded.Body) != 2 || string(decoded.Body[0]) != "one" || string(decoded.Body[1]) != "two" {
		t.Fatalf("unexpected body %q", decoded.Body)
	}
}

func TestSignedBytesExcludeChecksum(t *testing.T) {
	notice := &Notice{Kind: Acked, UID: testUID(1), Class: "c", Body: [][]byte{[]byte("b")}}

	unsigned, err := notice.SignedBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	notice.Checksum = []byte{1, 2, 3, 4}
	signedAfter, err := notice.SignedBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(unsigned, signedAfter) {
		t.Fatalf("checksum changed signed bytes")
	}

	packet, err := notice.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	decoded, err := Decode(packet)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	received, err := decoded.SignedBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(unsigned, received) {
		t.Fatalf("received signed bytes differ from sender's\nsender:   %q\nreceiver: %q", unsigned, received)
	}
}

func TestTimestampFromUID(t *testing.T) {
	notice := &Notice{UID: UniqueID{Addr: netip.MustParseAddr("10.0.0.1"), Sec: 100, Frac: 50000}}
	if got := notice.Timestamp(); got != 100.5 {
		t.Fatalf("expected timestamp 100.5, got %v", got)
	}
	if got := notice.Time().UnixMilli(); got != 100500 {
		t.Fatalf("expected 100500ms, got %d", got)
	}
}

func TestNewNoticeDefaults(t *testing.T) {
	notice := NewNotice("bob", "alice", "hi")
	if notice.Kind != Acked || !notice.Auth || notice.Class != DefaultClass || notice.Instance != DefaultInstance {
		t.Fatalf("unexpected defaults: %+v", notice)
	}
	if len(notice.Body) != 2 || string(notice.Body[1]) != "hi" {
		t.Fatalf("unexpected body %q", notice.Body)
	}
}
