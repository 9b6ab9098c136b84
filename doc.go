// Copyright 2024 The doclock authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package doclock implements a distributed mutual-exclusion lock coordinated
// through a shared document store (MongoDB, via the mongostore adapter)
// instead of an in-process primitive.
//
// Multiple processes serialize access to a logical resource - an "Order", say
// - by racing to increment a refcount field on a document keyed by
// (scope, key) in a shared collection. The store's find-and-modify is the
// only cross-process synchronization primitive used; there is no
// process-local mutex guarding the acquisition protocol itself.
//
// ## Overview
//
// A lockable value is anything implementing Handle. Most lockables are not
// roots: an OrderItem is locked by its parent Order, and acquiring a lock on
// the OrderItem really means acquiring the lock on the Order. resolveRoot
// walks ParentSource references up to the root Handle, the one whose
// Descriptor has no ParentSource, and it is the root's scope and key that
// become the lock document's identity. This means an entire object subtree
// hanging off one root shares a single lock.
//
// Within one goroutine (more precisely: one OwnerID, see context.go),
// nested calls to Lock on the same resolved key are non-blocking: the
// re-entrancy table bumps a nesting count and never touches the store. Only
// the outermost acquire and the outermost release talk to the collection.
//
// Across goroutines and processes, contention is resolved by the store
// alone. acquire increments refcount optimistically; a post-increment value
// of 1 means the caller now owns the lock, a value greater than 1 means it
// lost a race and must back off, and expire_at bounds how long a crashed
// holder can block everyone else.
//
//	+----------+   +--------+   +---------+   +------------+   +------+
//	|   free   |-->|  held  |-->| expired |-->| contended  |-->| free |
//	+----------+   +--------+   +---------+   +------------+   +------+
//
// Every branch except the plain free->held and held->free transitions is a
// recovery path run by whichever acquirer observes the anomaly;
// attemptAcquire in engine.go implements those branches.
package doclock
