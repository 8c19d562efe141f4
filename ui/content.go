package ui

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Participant-facing study content, authored in markdown and rendered to HTML
// on request. The wording follows the approved study materials.

const consentMarkdown = `# Informed Consent

You are invited to participate in a research study investigating
how people form judgments under conditions of uncertainty.

The study will take approximately 30 minutes.
You will be compensated for your time.

Your participation is voluntary and you may withdraw at any time.
All data will be kept confidential and anonymous.

By clicking **I Agree**, you confirm that you:

- Are at least 18 years old
- Have read and understood this information
- Voluntarily agree to participate
`

const instructionsMarkdown = `# Bayesian Belief Updating Study

In this study you will see jars containing black and white balls. Each jar
has an unknown proportion of black balls.

## Training

First you will complete 10 practice trials. On each trial you will see a
sample of balls and two candidate urns with stated percentages of black
balls. Your task: decide which urn was the source of the sample.

## Main experiment

You will then draw balls one at a time from a series of jars. After each
draw, report:

- your estimate of the probability of drawing a black ball (0 to 100)
- your confidence in that estimate (0 to 10)

When a jar is first presented, give your initial estimate before seeing any
samples. Some jars may return later in the study; their draw history stays
on screen.
`

const trainingFeedbackCorrect = "Correct!"
const trainingFeedbackIncorrect = "Incorrect"

// renderMarkdown converts a markdown document to an HTML page body
func renderMarkdown(src string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(src), p, renderer)
}
