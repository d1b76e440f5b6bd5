// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package synch

import "sync"

// Port is a rendezvous channel between exactly one sender and one
// receiver at a time: Send blocks until a Receive is present to take the
// message, and vice versa. The original's two historical variants
// disagree on buffering; this one tracks pairing with a numReceive
// counter rather than a nullable buffer pointer, so multiple waiting
// senders and receivers match up one-to-one in FIFO order as each side
// calls in.
type Port struct {
	Name string

	lock         *Lock
	newReceiver  *Condition
	messageReady *Condition

	numReceive int
	message    interface{}
	present    bool

	mu     sync.Mutex
	getOut bool
}

// NewPort returns an empty rendezvous port.
func NewPort(name string) *Port {
	p := &Port{Name: name}
	p.lock = NewLock(name + " lock")
	p.newReceiver = NewCondition(name+" new-receiver", p.lock)
	p.messageReady = NewCondition(name+" message", p.lock)
	return p
}

// Send blocks until a Receive is waiting to take msg, then hands it off.
func (p *Port) Send(caller Holder, msg interface{}, exitOnViolation bool) {
	p.lock.Acquire(caller)
	for p.numReceive == 0 && !p.closed() {
		p.newReceiver.Wait(caller, exitOnViolation)
	}
	if p.closed() {
		p.lock.Release(caller, exitOnViolation)
		return
	}
	p.numReceive--
	p.message = msg
	p.present = true
	p.messageReady.Signal()
	p.lock.Release(caller, exitOnViolation)
}

// Receive blocks until a Send delivers a message, then returns it. ok is
// false only if the port was torn down (Close) while waiting.
func (p *Port) Receive(caller Holder, exitOnViolation bool) (msg interface{}, ok bool) {
	p.lock.Acquire(caller)
	p.numReceive++
	p.newReceiver.Signal()
	for !p.present && !p.closed() {
		p.messageReady.Wait(caller, exitOnViolation)
	}
	if p.closed() && !p.present {
		p.lock.Release(caller, exitOnViolation)
		return nil, false
	}
	msg = p.message
	p.present = false
	p.lock.Release(caller, exitOnViolation)
	return msg, true
}

// Close releases any thread currently blocked in Send or Receive, using a
// get_out flag the way the original port's teardown did, instead of
// forcibly interrupting them.
func (p *Port) Close(caller Holder, exitOnViolation bool) {
	p.lock.Acquire(caller)
	p.mu.Lock()
	p.getOut = true
	p.mu.Unlock()
	p.newReceiver.Broadcast()
	p.messageReady.Broadcast()
	p.lock.Release(caller, exitOnViolation)
}

func (p *Port) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getOut
}
