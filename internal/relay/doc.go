// Package relay moves messages and typing state between the two sides of a
// conversation.
//
// A message is validated, stamped, persisted and only then emitted. The
// client room receives it as a message event and every admin routed to the
// conversation receives it as admin_message. Persistence is exactly once;
// live delivery is best effort and never retried. An admin who is not
// routed when a message arrives sees it in the transcript on the next join.
//
// Typing state is never persisted. Client typing goes to routed admins and
// admin typing goes to the client room.
package relay
