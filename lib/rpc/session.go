package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"
)

// session serves the requests of one client connection in order.
type session struct {
	srv     *Server
	conn    net.Conn
	network string
	scanner *bufio.Scanner
	enc     *json.Encoder
	// authed starts true for unix peers, which the socket mode already
	// restricts, and when the server has no token.
	authed bool
}

func (s *Server) newSession(conn net.Conn, network string) *session {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), MaxRequestSize)
	return &session{
		srv:     s,
		conn:    conn,
		network: network,
		scanner: sc,
		enc:     json.NewEncoder(conn),
		authed:  s.token == nil || network == "unix",
	}
}

func (ss *session) serve(ctx context.Context) {
	defer ss.conn.Close()
	stop := context.AfterFunc(ctx, func() { ss.conn.Close() })
	defer stop()

	l := log.WithField("network", ss.network).WithField("remote", ss.conn.RemoteAddr().String())
	l.Debug("session started")

	for ctx.Err() == nil {
		line, err := ss.read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.WithError(err).Debug("session ended")
			}
			return
		}
		ss.reply(ss.handle(ctx, line))
	}
}

// read returns the next request line.
func (ss *session) read() ([]byte, error) {
	if err := ss.conn.SetReadDeadline(time.Now().Add(IdleTimeout)); err != nil {
		return nil, err
	}
	if ss.scanner.Scan() {
		return ss.scanner.Bytes(), nil
	}
	switch err := ss.scanner.Err(); {
	case errors.Is(err, bufio.ErrTooLong):
		return nil, ErrRequestTooLarge
	case err != nil:
		return nil, err
	}
	return nil, io.EOF
}

func (ss *session) handle(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return NewErrorResponse(nil, NewError(ErrCodeParse, "parse error", err.Error()))
	}
	if err := ValidateRequest(&req); err != nil {
		return NewErrorResponse(req.ID, NewError(ErrCodeInvalidRequest, "invalid request", err.Error()))
	}

	switch {
	case req.Method == "auth":
		return ss.authenticate(&req)
	case !ss.authed:
		return NewErrorResponse(req.ID, ErrAuthRequired())
	}
	return ss.srv.dispatch(ctx, &req)
}

func (ss *session) authenticate(req *Request) *Response {
	if ss.srv.token == nil {
		ss.authed = true
		return statusMessage(req.ID, "authentication not required")
	}

	var params struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Token == "" {
		return NewErrorResponse(req.ID, ErrInvalidParams("token required"))
	}
	token, err := decodeToken(params.Token)
	if err != nil {
		return NewErrorResponse(req.ID, ErrInvalidParams("invalid token format"))
	}
	if !tokenMatches(token, ss.srv.token) {
		log.WithField("remote", ss.conn.RemoteAddr().String()).Warn("authentication failed")
		return NewErrorResponse(req.ID, ErrPermissionDenied("invalid token"))
	}

	ss.authed = true
	return statusMessage(req.ID, "authenticated")
}

func (ss *session) reply(resp *Response) {
	if err := ss.conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		log.WithError(err).Debug("setting write deadline")
	}
	// Encode terminates each response with the newline the protocol needs.
	if err := ss.enc.Encode(resp); err != nil {
		log.WithError(err).Debug("writing response")
	}
}

func statusMessage(id json.RawMessage, msg string) *Response {
	resp, _ := NewSuccessResponse(id, map[string]string{"message": msg})
	return resp
}
