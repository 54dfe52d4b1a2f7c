// Package transcript defines role-tagged messages and append-only
// transcripts shared by the session stores and the collaboration graphs.
//
// A Transcript is an ordered list of Message values. Order is significant:
// it is the only context a model receives. Helpers never modify a slice
// in place; Append always returns a fresh slice so a transcript handed to a
// stage can be read without copying.
//
// Messages convert to and from langchaingo's llms.MessageContent so any
// llms.Model can be driven from a transcript:
//
//	contents := transcript.ToMessageContents(msgs)
//	resp, err := model.GenerateContent(ctx, contents)
//	reply := transcript.FromChoice(resp.Choices[0])
package transcript
