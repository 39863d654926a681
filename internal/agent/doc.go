// Package agent is the conversational task router.
//
// Each utterance runs through a small graph: an arbitration node classifies
// it, questions go to a responder node, and commands go to a task allocation
// node that proposes tool calls. Proposed calls are not executed until a
// human approves them: the approval node suspends the run, and the session
// is resumed with the decision. "yes" or "y" runs the tools; anything else
// ends the run with a rejection.
//
// A new utterance on a session that is waiting for approval abandons the
// approval. The pending calls are recorded in the history as cancelled and
// the new utterance is handled normally.
//
// State.History is append-only across the whole session.
package agent
