// Package onebot implements the JSON codec for the OneBot v11 bot-bridge protocol.
//
// # Overview
//
// A bridge (go-cqhttp, NapCat, Lagrange, ...) exchanges three kinds of frames with
// this gateway over a WebSocket:
//
//   - Events, pushed by the bridge, discriminated by "post_type"
//   - Actions, sent by the gateway, carrying an "echo" correlation token
//   - Action responses, sent by the bridge, echoing that token back
//
// # Events
//
// Event is a sealed sum type. Parse peeks the discriminator and decodes the
// matching variant in a second pass:
//
//	ev, err := onebot.Parse(frame)
//	switch e := ev.(type) {
//	case *onebot.MessageEvent:
//	    fmt.Println(e.PlainText())
//	case *onebot.MetaEvent:
//	    // heartbeat / lifecycle
//	}
//
// Unknown or malformed frames produce a *ParseError instead of a panic so the
// transport can log and continue.
//
// # Messages
//
// A Message is an ordered list of Segments. Segment data is kept as raw JSON, so
// segment types this package does not know about round-trip unchanged.
//
// # Actions and responses
//
//	action := onebot.SendGroupMsg(123, onebot.Message{onebot.Text("hi")})
//	data, err := action.Marshal()
//
// Nil parameters are omitted on the wire. ParseActionResponse accepts string or
// numeric echo values.
package onebot
