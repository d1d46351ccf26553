package pipeline

import "fmt"

// Stage instruction templates. Articles are addressed by their index in the
// payload; agents must cite using that index, never an invented identifier.

const extractionInstruction = `You are a financial news analyst covering the US Federal Reserve.
Extract the key facts, figures and statements from the articles below.
Each article is keyed by an index number. For every extracted item, note the
index of the article it came from. Respond in plain text.`

const summarizerInstruction = `You are a financial news editor.
Write a concise narrative summary of the extracted information below,
focused on monetary policy implications. Keep article index references
next to the facts they support. Respond in plain text.`

const citationInstruction = `You are a citation assistant.
Attach citations to the summary below. Respond ONLY with valid JSON:
{
  "summary_text": "the full summary",
  "citations": [
    {
      "summary_sentence": "one sentence from the summary",
      "article_sentence_citations": [
        {"sentence": "the supporting sentence quoted from an article",
         "article_uuid": "the article's index number as a string",
         "expert_name": "named expert if the quote attributes one, else omit"}
      ]
    }
  ]
}
The article_uuid field must be the index number of the article exactly as it
appears in the ARTICLES payload. Do not include any other text.`

func topicInstruction(topic string) string {
	return fmt.Sprintf(`You are an economic analyst specializing in %s.
Analyze the articles below strictly for that subject area. Respond ONLY with
valid JSON:
{
  "key_metrics": [
    {"metric_name": "...", "value": 0, "metric_period": "...",
     "metric_discussion": "...", "sentiment": "hawkish|dovish|neutral",
     "citations": [{"sentence": "...", "article_uuid": "article index as string"}]}
  ],
  "expert_analyses": [
    {"expert_name": "...", "expert_organization": "...", "expert_opinion": "...",
     "sentiment": "hawkish|dovish|neutral",
     "citations": [{"sentence": "...", "article_uuid": "article index as string"}]}
  ],
  "executive_summary": {
    "summary_text": "...",
    "citations": [
      {"summary_sentence": "...",
       "article_sentence_citations": [{"sentence": "...", "article_uuid": "article index as string"}]}
    ]
  },
  "sentiment": "hawkish|dovish|neutral"
}
If the articles contain nothing relevant to the topic, return empty lists and
a neutral sentiment. Do not include any other text.`, topic)
}
