package fxp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"net/netip"
	"testing"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 250_000_000, time.UTC)

func TestDecodeMessageRoundTrip(t *testing.T) {
	in := []domain.Quote{
		{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: 0.9177},
		{Timestamp: t0.Add(time.Millisecond), Pair: domain.Pair{Base: "GBP", Quote: "JPY"}, Rate: 190.25},
	}

	payload := EncodeMessage(in)
	if len(payload) != 2*BytesPerQuote {
		t.Fatalf("payload is %d bytes, want %d", len(payload), 2*BytesPerQuote)
	}

	out, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d quotes, want %d", len(out), len(in))
	}
	for i := range in {
		if !out[i].Timestamp.Equal(in[i].Timestamp) {
			t.Errorf("quote %d timestamp = %v, want %v", i, out[i].Timestamp, in[i].Timestamp)
		}
		if out[i].Pair != in[i].Pair {
			t.Errorf("quote %d pair = %v, want %v", i, out[i].Pair, in[i].Pair)
		}
		if out[i].Rate != in[i].Rate {
			t.Errorf("quote %d rate = %v, want %v", i, out[i].Rate, in[i].Rate)
		}
	}
}

func TestDecodeMessageRecordLayout(t *testing.T) {
	rec := EncodeQuote(domain.Quote{
		Timestamp: t0,
		Pair:      domain.Pair{Base: "AUD", Quote: "CAD"},
		Rate:      0.75,
	})

	if got := binary.BigEndian.Uint64(rec[0:8]); got != uint64(t0.UnixMicro()) {
		t.Errorf("timestamp field = %d, want %d", got, t0.UnixMicro())
	}
	if got := string(rec[8:14]); got != "AUDCAD" {
		t.Errorf("currency field = %q, want AUDCAD", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(rec[14:22])); got != 0.75 {
		t.Errorf("rate field = %v, want 0.75", got)
	}
	if !bytes.Equal(rec[22:32], make([]byte, 10)) {
		t.Errorf("reserved tail = %v, want zeros", rec[22:32])
	}
}

func TestDecodeMessageRejectsRaggedPayload(t *testing.T) {
	_, err := DecodeMessage(make([]byte, BytesPerQuote+1))
	if !errors.Is(err, domain.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeMessageEmptyPayload(t *testing.T) {
	quotes, err := DecodeMessage(nil)
	if err != nil {
		t.Fatalf("DecodeMessage(nil): %v", err)
	}
	if len(quotes) != 0 {
		t.Fatalf("decoded %d quotes from empty payload", len(quotes))
	}
}

func TestDecodeMessageRejectsBadCurrency(t *testing.T) {
	rec := EncodeQuote(domain.Quote{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: 1})
	rec[9] = '4'
	if _, err := DecodeMessage(rec); !errors.Is(err, domain.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecodeMessageRejectsNonPositiveRate(t *testing.T) {
	for _, rate := range []float64{0, -1.5, math.NaN(), math.Inf(1)} {
		rec := EncodeQuote(domain.Quote{Timestamp: t0, Pair: domain.Pair{Base: "USD", Quote: "EUR"}, Rate: rate})
		if _, err := DecodeMessage(rec); !errors.Is(err, domain.ErrMalformedFrame) {
			t.Errorf("rate %v: err = %v, want ErrMalformedFrame", rate, err)
		}
	}
}

func TestSubscriptionRoundTrip(t *testing.T) {
	addr := netip.AddrPortFrom(netip.AddrFrom4([4]byte{192, 168, 1, 40}), 50403)

	buf, err := MarshalSubscription(addr)
	if err != nil {
		t.Fatalf("MarshalSubscription: %v", err)
	}
	if len(buf) != SubscriptionSize {
		t.Fatalf("subscription datagram is %d bytes, want %d", len(buf), SubscriptionSize)
	}
	if !bytes.Equal(buf[0:4], []byte{192, 168, 1, 40}) {
		t.Errorf("address bytes = %v", buf[0:4])
	}
	if got := binary.BigEndian.Uint16(buf[4:6]); got != 50403 {
		t.Errorf("port field = %d, want 50403", got)
	}

	back, err := UnmarshalSubscription(buf)
	if err != nil {
		t.Fatalf("UnmarshalSubscription: %v", err)
	}
	if back != addr {
		t.Errorf("round trip = %v, want %v", back, addr)
	}
}

func TestMarshalSubscriptionRejectsIPv6(t *testing.T) {
	addr := netip.AddrPortFrom(netip.MustParseAddr("2001:db8::1"), 9000)
	if _, err := MarshalSubscription(addr); !errors.Is(err, domain.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestUnmarshalSubscriptionRejectsWrongSize(t *testing.T) {
	if _, err := UnmarshalSubscription(make([]byte, 5)); !errors.Is(err, domain.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}
