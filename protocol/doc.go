package protocol

// This package implements parsing and serialising of the text protocol that
// Lantern clients use to talk to a publish/subscribe server.
//
// The protocol aims to be
//
// - easy to implement
// - human readable
// - cheap to parse on a single blocking stream
//
// - `Frame` - Any protocol line, plus its payload block when it has one.
// - `Request` direction - Frames a client sends: CONNECT, PUB, SUB, UNSUB, PING, PONG.
// - `Response` direction - Frames a server sends: INFO, MSG, HMSG, PING, PONG, +OK, -ERR.
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - fields are separated by one or more spaces
// - verbs are uppercase on the wire, but accepted in any case on receive
// - payload blocks follow their protocol line, are exactly the declared number
//   of bytes long and are followed by their own `\r\n`
//
// Servers push MSG frames whenever they are ready, so they can interleave with
// the replies to client commands. Nothing identifies which command a `+OK`
// belongs to; a client must wait for one reply before sending the next command
// when it runs in verbose mode.
//
// === Handshake
//
//  ```
//    < INFO {"server_id":"x","version":"2.10.0","host":"0.0.0.0","port":4222,"proto":1,"max_payload":1048576}\r\n
//    > CONNECT {"verbose":false,"pedantic":true,...}\r\n
//    > PING\r\n
//    < PONG\r\n
//  ```
//
// === PUB / MSG
//
//  ```
//    > PUB <subject> [reply-to] <#bytes>\r\n
//    > <payload>\r\n
//    < MSG <subject> <sid> [reply-to] <#bytes>\r\n
//    < <payload>\r\n
//  ```
//
// === HMSG
//
//  ```
//    < HMSG <subject> <sid> [reply-to] <#header bytes> <#total bytes>\r\n
//    < NATS/1.0 503\r\n\r\n<payload>\r\n
//  ```
//
// The header block starts with a version line. When its second token is three
// characters long it is an inline status; 503 means a request found no
// responders.
//
// === Error responses
//
//  ```
//    < -ERR '<errMessage>'\r\n
//  ```
