// internal/handlers/session.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/quizboard/internal/game"
	"github.com/jason-s-yu/quizboard/internal/models"
	"github.com/jason-s-yu/quizboard/internal/room"
	"github.com/sirupsen/logrus"
)

var (
	ErrBadJSON        = game.NewError(game.KindValidation, "bad_json")
	ErrNotInRoom      = game.NewError(game.KindConflict, "not_in_room")
	ErrUnknownCommand = game.NewError(game.KindValidation, "unknown_command")
)

// Command names accepted on the websocket.
const (
	CmdRoomCreate      = "room:create"
	CmdRoomJoin        = "room:join"
	CmdRoomLeave       = "room:leave"
	CmdPlayerReady     = "player:ready"
	CmdHostStart       = "host:start"
	CmdHostSetPassword = "host:setPassword"
	CmdHostLoadQuiz    = "host:loadQuiz"
	CmdHostAction      = "host:action"
)

type createPayload struct {
	ClientID string `json:"clientId"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type joinPayload struct {
	Code       string      `json:"code"`
	ClientID   string      `json:"clientId"`
	Name       string      `json:"name"`
	Role       models.Role `json:"role"`
	Password   string      `json:"password"`
	Credential string      `json:"credential"`
}

type readyPayload struct {
	Ready bool `json:"ready"`
}

type passwordPayload struct {
	Password string `json:"password"`
}

// joinResponse is the ack payload of room:create and room:join.
type joinResponse struct {
	Code        string             `json:"code"`
	Snapshot    *room.Snapshot     `json:"snapshot"`
	Participant models.Participant `json:"participant"`
	IsHost      bool               `json:"isHost"`
	Credential  string             `json:"credential,omitempty"`
}

// session is the per-connection state: which room and identity the socket is bound to.
// It is only touched from the connection's read loop.
type session struct {
	srv      *Server
	conn     *room.Connection
	room     *room.Room
	identity string
	log      *logrus.Entry
}

func newSession(srv *Server, conn *room.Connection, log *logrus.Entry) *session {
	return &session{srv: srv, conn: conn, log: log}
}

// handle runs one command. Panics are converted to action_failed so a bad
// command never takes the connection or the room down.
func (sess *session) handle(in inbound) (data interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			sess.log.WithFields(logrus.Fields{"command": in.Type, "panic": p}).Error("command handler panicked")
			data, err = nil, fmt.Errorf("%w: %v", game.ErrActionFailed, p)
		}
	}()

	switch in.Type {
	case CmdRoomCreate:
		return sess.create(in.Data)
	case CmdRoomJoin:
		return sess.join(in.Data)
	case CmdRoomLeave:
		sess.leave()
		return nil, nil
	}

	// Everything below needs a bound room.
	if sess.room == nil {
		return nil, ErrNotInRoom
	}

	switch in.Type {
	case CmdPlayerReady:
		var p readyPayload
		if err := decodeData(in.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.room.SetReady(sess.identity, p.Ready)
	case CmdHostStart:
		_, err := sess.room.Apply(sess.identity, game.Action{Type: game.ActionStart})
		return nil, err
	case CmdHostSetPassword:
		var p passwordPayload
		if err := decodeData(in.Data, &p); err != nil {
			return nil, err
		}
		return nil, sess.room.SetPassword(sess.identity, p.Password)
	case CmdHostLoadQuiz:
		var q models.Quiz
		if err := decodeData(in.Data, &q); err != nil {
			return nil, fmt.Errorf("%w: %v", game.ErrBadQuiz, err)
		}
		_, err := sess.room.Apply(sess.identity, game.Action{Type: game.ActionLoadQuiz, Quiz: &q})
		return nil, err
	case CmdHostAction:
		var a game.Action
		if err := decodeData(in.Data, &a); err != nil {
			return nil, err
		}
		if !a.Type.Known() {
			return nil, fmt.Errorf("%w: %q", game.ErrUnknownAction, a.Type)
		}
		_, err := sess.room.Apply(sess.identity, a)
		return nil, err
	default:
		sess.log.Warnf("unknown command %q", in.Type)
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, in.Type)
	}
}

func (sess *session) create(raw json.RawMessage) (interface{}, error) {
	var p createPayload
	if err := decodeData(raw, &p); err != nil {
		return nil, err
	}

	rm, err := sess.srv.Rooms.Create(p.ClientID, p.Password)
	if err != nil {
		return nil, err
	}

	sess.leave()
	res, err := rm.Join(room.JoinRequest{
		Identity:    p.ClientID,
		DisplayName: p.Name,
		Role:        models.RoleHost,
	}, sess.conn)
	if err != nil {
		sess.srv.Rooms.Delete(rm.Code)
		return nil, fmt.Errorf("%w: %v", room.ErrCreateFailed, err)
	}
	sess.bind(rm, p.ClientID)

	credential, err := sess.srv.Issuer.CreateHostCredential(p.ClientID, rm.Code)
	if err != nil {
		sess.log.WithError(err).Error("failed to issue host credential")
		return nil, fmt.Errorf("%w: %v", room.ErrCreateFailed, err)
	}

	return joinResponse{
		Code:        rm.Code,
		Snapshot:    res.Snapshot,
		Participant: res.Participant,
		IsHost:      true,
		Credential:  credential,
	}, nil
}

func (sess *session) join(raw json.RawMessage) (interface{}, error) {
	var p joinPayload
	if err := decodeData(raw, &p); err != nil {
		return nil, err
	}

	rm, err := sess.srv.Rooms.Get(p.Code)
	if err != nil {
		return nil, err
	}

	hostCredential := false
	if p.Credential != "" {
		issuedTo, err := sess.srv.Issuer.AuthenticateHostCredential(p.Credential, rm.Code)
		if err != nil {
			sess.log.WithError(err).WithField("room", rm.Code).Debug("host credential rejected")
		} else {
			hostCredential = true
			if issuedTo != p.ClientID {
				sess.log.WithFields(logrus.Fields{"room": rm.Code, "issuedTo": issuedTo}).Info("host credential presented from a new identity")
			}
		}
	}

	if sess.room != rm {
		sess.leave()
	}
	res, err := rm.Join(room.JoinRequest{
		Identity:       p.ClientID,
		DisplayName:    p.Name,
		Role:           p.Role,
		Password:       p.Password,
		HostCredential: hostCredential,
	}, sess.conn)
	if err != nil {
		return nil, err
	}
	sess.bind(rm, p.ClientID)

	resp := joinResponse{
		Code:        rm.Code,
		Snapshot:    res.Snapshot,
		Participant: res.Participant,
		IsHost:      res.IsHost,
	}
	if res.IsHost {
		if resp.Credential, err = sess.srv.Issuer.CreateHostCredential(p.ClientID, rm.Code); err != nil {
			sess.log.WithError(err).Warn("failed to reissue host credential")
		}
	}
	return resp, nil
}

func (sess *session) bind(rm *room.Room, identity string) {
	sess.room = rm
	sess.identity = identity
	sess.log = sess.log.WithFields(logrus.Fields{"room": rm.Code, "identity": identity})
}

// leave detaches the connection from its room, keeping the participant record.
func (sess *session) leave() {
	if sess.room == nil {
		return
	}
	sess.room.Detach(sess.conn)
	sess.room = nil
	sess.identity = ""
}

// ack reports the outcome of a command to the caller. It blocks until the
// message is queued so acks are never dropped.
func (sess *session) ack(ctx context.Context, id json.RawMessage, data interface{}, err error) error {
	ok := err == nil
	msg := room.Message{Type: FrameAck, ID: id, OK: &ok, Data: data}
	if err != nil {
		msg.Error = game.CodeOf(err)
		msg.Message = err.Error()
		if game.KindOf(err) == game.KindInternal {
			sess.log.WithError(err).Warn("command failed")
		}
	}
	return sess.conn.Send(ctx, msg)
}

// decodeData unmarshals a command payload. A missing payload decodes as the zero value.
func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", game.ErrBadArgs, err)
	}
	return nil
}
