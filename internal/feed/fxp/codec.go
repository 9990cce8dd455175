// Package fxp implements the forex provider wire format: fixed 32-byte quote
// records over UDP, plus the 6-byte subscription datagram.
package fxp

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/ewhitmore/forexbot/internal/domain"
)

const (
	// BytesPerQuote is the fixed size of one quote record on the wire.
	BytesPerQuote = 32

	// SubscriptionSize is the size of a subscription request datagram:
	// a 4-byte IPv4 address followed by a 2-byte big-endian port.
	SubscriptionSize = 6

	microsPerSecond = 1_000_000
)

// DecodeMessage splits a provider datagram into quote records. The payload
// must be a whole number of 32-byte records; anything else is a malformed
// frame. Each record carries a big-endian microsecond UTC timestamp, a 6-byte
// ASCII currency pair, and a little-endian float64 rate; the trailing 10
// bytes are reserved and ignored.
func DecodeMessage(payload []byte) ([]domain.Quote, error) {
	if len(payload)%BytesPerQuote != 0 {
		return nil, fmt.Errorf("fxp: payload of %d bytes is not a multiple of %d: %w",
			len(payload), BytesPerQuote, domain.ErrMalformedFrame)
	}

	quotes := make([]domain.Quote, 0, len(payload)/BytesPerQuote)
	for off := 0; off < len(payload); off += BytesPerQuote {
		q, err := decodeQuote(payload[off : off+BytesPerQuote])
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func decodeQuote(rec []byte) (domain.Quote, error) {
	micros := binary.BigEndian.Uint64(rec[0:8])
	ts := time.Unix(int64(micros/microsPerSecond), int64(micros%microsPerSecond)*1000).UTC()

	for _, b := range rec[8:14] {
		if b < 'A' || b > 'Z' {
			return domain.Quote{}, fmt.Errorf("fxp: non-alphabetic currency byte %#x: %w",
				b, domain.ErrMalformedFrame)
		}
	}
	pair := domain.Pair{
		Base:  domain.Currency(rec[8:11]),
		Quote: domain.Currency(rec[11:14]),
	}

	rate := math.Float64frombits(binary.LittleEndian.Uint64(rec[14:22]))
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return domain.Quote{}, fmt.Errorf("fxp: rate %v for %s is not a positive finite number: %w",
			rate, pair, domain.ErrMalformedFrame)
	}

	return domain.Quote{Timestamp: ts, Pair: pair, Rate: rate}, nil
}

// EncodeQuote serializes a single quote into a fresh 32-byte record. The
// provider simulator uses it; the reserved tail bytes are left zero.
func EncodeQuote(q domain.Quote) []byte {
	rec := make([]byte, BytesPerQuote)
	micros := uint64(q.Timestamp.UnixMicro())
	binary.BigEndian.PutUint64(rec[0:8], micros)
	copy(rec[8:11], string(q.Pair.Base))
	copy(rec[11:14], string(q.Pair.Quote))
	binary.LittleEndian.PutUint64(rec[14:22], math.Float64bits(q.Rate))
	return rec
}

// EncodeMessage packs quotes into one datagram, 32 bytes per record.
func EncodeMessage(quotes []domain.Quote) []byte {
	payload := make([]byte, 0, len(quotes)*BytesPerQuote)
	for _, q := range quotes {
		payload = append(payload, EncodeQuote(q)...)
	}
	return payload
}

// MarshalSubscription serializes the listener address a subscriber wants
// quotes delivered to. Only IPv4 addresses fit the wire format.
func MarshalSubscription(addr netip.AddrPort) ([]byte, error) {
	ip := addr.Addr()
	if ip.Is4In6() {
		ip = ip.Unmap()
	}
	if !ip.Is4() {
		return nil, fmt.Errorf("fxp: subscription address %s is not IPv4: %w", ip, domain.ErrMalformedFrame)
	}
	buf := make([]byte, 0, SubscriptionSize)
	b4 := ip.As4()
	buf = append(buf, b4[:]...)
	return binary.BigEndian.AppendUint16(buf, addr.Port()), nil
}

// UnmarshalSubscription parses a subscription request datagram back into the
// subscriber's delivery address. The provider simulator uses it.
func UnmarshalSubscription(payload []byte) (netip.AddrPort, error) {
	if len(payload) != SubscriptionSize {
		return netip.AddrPort{}, fmt.Errorf("fxp: subscription datagram is %d bytes, want %d: %w",
			len(payload), SubscriptionSize, domain.ErrMalformedFrame)
	}
	ip := netip.AddrFrom4([4]byte(payload[0:4]))
	port := binary.BigEndian.Uint16(payload[4:6])
	return netip.AddrPortFrom(ip, port), nil
}
