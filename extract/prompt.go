package extract

import (
	"fmt"

	"github.com/use-agent/shopscout/llm"
)

const systemPrompt = `You extract purchasable physical products from e-commerce page content.
Answer with a JSON array only, no prose and no code fences.`

// BuildPrompt returns the extraction prompt for one page fragment.
func BuildPrompt(keyword, pageURL, fragment string, maxResults, maxTokens int) llm.Prompt {
	user := fmt.Sprintf(`Find up to %d products on this page that match the search %q.

Return a JSON array of objects with exactly these keys:
  "title"      - product name as shown on the page
  "price"      - displayed price including currency symbol, or null
  "size"       - size or dimensions if stated, or null
  "imageUrl"   - URL of the main product image
  "productUrl" - URL of the product's own page

Rules:
- Only physical goods a customer can buy. Exclude services, courses, workshops, rentals, hire and consultations.
- Skip items without an image.
- Copy URLs exactly as they appear; relative URLs are fine.
- If nothing matches, return [].

Page URL: %s

Page content:
%s`, maxResults, keyword, pageURL, fragment)

	return llm.Prompt{
		System:      systemPrompt,
		User:        user,
		Temperature: 0,
		MaxTokens:   maxTokens,
	}
}
