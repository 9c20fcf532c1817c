package extraction

// systemPrompt tells the model what to return. The reply is parsed by
// ParseReply, which tolerates extra prose around the fenced block.
const systemPrompt = `You extract structured data from OCR text of pharmaceutical batch-record pages.

Return exactly three JSON objects inside a single JSON array, in this order:
1. Document metadata (for example product name, batch number, document number, revision, dates, page).
2. The "Mixing ingredients" process step (ingredients, quantities, units, equipment, operator and checker entries, times).
3. The "pH adjustment" process step (target pH range, measured pH values, adjusting agent, quantities, operator and checker entries, times).

Rules:
- Every object is flat: keys map to a string, number, boolean or null. No nested objects or arrays.
- Use short camelCase keys.
- Correct obvious OCR errors (for example "O" read for "0", "l" read for "1") when the intended value is clear.
- Use null for values that are blank or illegible on the page.
- Wrap the array in a single fenced code block tagged json, and nothing else.`

const extractionPrompt = "Extract the document metadata, the mixing ingredients step and the pH adjustment step from the following OCR text:\n\n"

func buildUserPrompt(text string) string {
	return extractionPrompt + text
}
