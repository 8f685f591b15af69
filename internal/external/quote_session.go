package external

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Quote session commands understood by the vendor.
const (
	CmdCreateSession = "quote_create_session"
	CmdSetFields     = "quote_set_fields"
	CmdAddSymbols    = "quote_add_symbols"
	CmdFastSymbols   = "quote_fast_symbols"
	CmdPing          = "ping"

	// EventQuoteData marks an inbound quote update.
	EventQuoteData = "qsd"
)

// QuoteFields is the field set requested for every quote session.
var QuoteFields = []string{
	"lp", "bid", "ask", "ch", "chp",
	"open_price", "close_price", "high_price", "low_price",
	"volume", "update_time",
}

// NewSessionID returns a fresh client-side quote session id (qs_ + 12 hex chars).
func NewSessionID() string {
	return "qs_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// OpenQuoteSession creates a quote session for symbol on conn and forces an
// immediate snapshot. Register event handlers before calling it.
func OpenQuoteSession(conn FeedConn, sessionID, symbol string) error {
	fields := make([]any, 0, len(QuoteFields)+1)
	fields = append(fields, sessionID)
	for _, f := range QuoteFields {
		fields = append(fields, f)
	}

	steps := []struct {
		method string
		params []any
	}{
		{CmdCreateSession, []any{sessionID}},
		{CmdSetFields, fields},
		{CmdAddSymbols, []any{sessionID, symbol}},
		{CmdFastSymbols, []any{sessionID, symbol}},
	}

	for _, s := range steps {
		if err := conn.Send(s.method, s.params...); err != nil {
			return fmt.Errorf("%s: %w", s.method, err)
		}
	}
	return nil
}

func Ping(conn FeedConn) error {
	return conn.Send(CmdPing)
}
