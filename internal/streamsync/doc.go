// Package streamsync joins several independently paced producer streams into
// one stream of composite events keyed by trigger number.
//
// Every producer connection owns a FIFO queue. A round pops, from every queue
// whose front carries the target trigger number, that front event and attaches
// it to a composite; fronts below the target are late and dropped, fronts above
// it wait. The target advances by one after every round whatever the outcome,
// so a silent producer can make composites sparse but never stalls the stream.
//
// Rounds run when every active producer has something queued, when a queue
// reaches MaxPending, or when the oldest queued event is older than
// StragglerTimeout. Disconnected producers stay in the table until their queue
// has drained.
package streamsync
