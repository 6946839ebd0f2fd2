// Package chatbot implements the dengue retrieval answering engine.
//
// An Engine turns free text into exactly one QueryResult:
//
//	text -> warning-sign check -> typo-corrected query variants
//	     -> embed + search (TopK*3 per variant) -> group hits by kb_id
//	     -> select by score sum -> gate by max score -> reply or decline
//
// Selection and gating use different statistics on purpose. Groups are ranked
// by the sum of their hit scores, which favors entries corroborated by several
// variants, while acceptance requires the best single hit of the chosen group
// to reach the similarity threshold.
//
// The engine never returns an error from Answer. Embedding or index failures
// degrade to the "no results" decline.
package chatbot
