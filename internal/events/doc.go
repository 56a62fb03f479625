// Package events defines the immutable Event record that flows through the
// bus, its order-preserving JSON codec, and newline-delimited line framing.
//
//	ev := events.MustNew("CheckResult", events.F("host", "a"))
//	line, _ := events.EncodeLine(ev) // {"type":"CheckResult","host":"a"}\n
package events
