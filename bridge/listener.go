// Copyright 2024-2025 The vulcan Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/broker"
	"github.com/vulcanapp/vulcan/common"
)

// BroadcastCB callback re-emitting one event to all connected realtime clients
type BroadcastCB func(event string, payload []byte)

// ListenerState bridge lifecycle state
type ListenerState int

const (
	// Idle no active poll
	Idle ListenerState = iota
	// Draining actively pulling from the fan-out topic
	Draining
)

// Listener bridges fan-out topic records to connected realtime clients.
//
// A Listener is a single long-lived background task started once at process
// startup; it owns exactly one consumer on the fan-out topic and re-emits
// each record it pulls as a broadcast, not point-to-point.
type Listener interface {
	// Start transition Idle -> Draining and begin bridging records
	Start(wg *sync.WaitGroup) error
	// Stop request cooperative stop; the consumer terminates within one poll cycle
	Stop() error
	// State the current lifecycle state
	State() ListenerState
}

// listenerImpl implements Listener
type listenerImpl struct {
	common.Component
	topic     string
	consumer  broker.Consumer
	broadcast BroadcastCB
	state     ListenerState
	lock      *sync.Mutex
}

// DefineListener create a new fan-out Listener around a dedicated consumer
func DefineListener(
	topic string, consumer broker.Consumer, broadcast BroadcastCB,
) (Listener, error) {
	logTags := log.Fields{
		"module":    "bridge",
		"component": "listener",
		"topic":     topic,
	}
	return &listenerImpl{
		Component: common.Component{LogTags: logTags},
		topic:     topic,
		consumer:  consumer,
		broadcast: broadcast,
		state:     Idle,
		lock:      &sync.Mutex{},
	}, nil
}

// Start transition Idle -> Draining and begin bridging records
func (l *listenerImpl) Start(wg *sync.WaitGroup) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.state != Idle {
		err := fmt.Errorf("listener for %s already draining", l.topic)
		log.WithError(err).WithFields(l.LogTags).Error("Unable to start listener")
		return err
	}
	if err := l.consumer.StartPolling([]string{l.topic}, l.handleRecord, wg); err != nil {
		log.WithError(err).WithFields(l.LogTags).Error("Unable to start fan-out consumer")
		return err
	}
	l.state = Draining
	log.WithFields(l.LogTags).Info("Listener draining fan-out topic")
	return nil
}

// handleRecord validate one fan-out record and re-emit it to all clients
func (l *listenerImpl) handleRecord(ctxt context.Context, record broker.Record) error {
	event, err := ParseEvent(record.Key, record.Value)
	if err != nil {
		// Unknown or malformed events are dropped, never fatal
		log.WithError(err).WithFields(l.LogTags).Warnf("Dropping record %s", record)
		return nil
	}
	log.WithFields(l.LogTags).Debugf("Bridging %s", event.Name())
	l.broadcast(event.Name(), record.Value)
	return nil
}

// Stop request cooperative stop
func (l *listenerImpl) Stop() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.state == Idle {
		return nil
	}
	l.state = Idle
	log.WithFields(l.LogTags).Info("Stopping listener")
	return l.consumer.Terminate()
}

// State the current lifecycle state
func (l *listenerImpl) State() ListenerState {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}
