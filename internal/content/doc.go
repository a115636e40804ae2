// Package content turns the tracking record's summary into episode copy:
// title candidates, a recommended index, and a description.
//
// LLMGenerator asks an llm.Completer for a JSON payload and retries once with
// the fallback model. When generation fails entirely, Fallback supplies
// deterministic copy so the publish run can continue.
package content
