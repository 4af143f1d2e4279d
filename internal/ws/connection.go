package ws

import (
	"context"
	"errors"
	"sync"

	"parley/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type sessionHub interface {
	Attach(userID string) (<-chan models.ServerMessage, error)
	Detach(userID string)
	Dispatch(userID string, msg models.ClientMessage)
}

// Connection pumps client operations into the session and session events
// back to the client.
type Connection struct {
	ws         wsConnection
	hub        sessionHub
	userID     string
	fromClient chan models.ClientMessage
	fromServer <-chan models.ServerMessage
	errorCh    chan error
}

func NewConnection(
	hub sessionHub,
	ws wsConnection,
	userID string,
) (*Connection, error) {
	fromServer, err := hub.Attach(userID)
	if err != nil {
		return nil, err
	}
	return &Connection{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		fromClient: make(chan models.ClientMessage),
		fromServer: fromServer,
		errorCh:    make(chan error, 2),
	}, nil
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Detach(c.userID)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	}()

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case msg := <-c.fromClient:
			c.hub.Dispatch(c.userID, msg)
		case msg, ok := <-c.fromServer:
			if !ok {
				// A newer connection attached or the session closed.
				return nil
			}
			if err := c.ws.WriteJSON(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
