package mcpserver

// MarkupSyntax describes the scientific markup the preprocessor rewrites.
// LLM consumers should read it before writing chapters.
const MarkupSyntax = `# Scientific Markup Syntax

Chapters are plain Markdown. The preprocessor rewrites two constructs.

## Blocks

A block starts and ends with a line beginning with ` + "`$$`" + `. The first line is the header.

` + "```" + `markdown
$$
\int_0^1 x\,dx = \frac{1}{2}
$$

$$equation,euler
e^{i\pi} + 1 = 0
$$

$$latex,setup,Experimental setup
\documentclass{standalone}
\begin{document} ... \end{document}
$$

$$gnuplot,decay,Exponential decay
plot exp(-x)
$$
` + "```" + `

| header | result |
|---|---|
| ` + "`$$`" + ` or ` + "`$$equation`" + ` | unnumbered display equation |
| ` + "`$$equation,<label>`" + ` | numbered equation, referable as ` + "`equ`" + ` |
| ` + "`$$<kind>,<label>,<title>`" + ` | numbered figure, kind is latex, gnuplot or gnuplotonly, referable as ` + "`fig`" + ` |

Rules:

1. Equation bodies are LaTeX math; they are wrapped in a standalone document.
2. ` + "`latex`" + ` bodies are complete LaTeX documents.
3. ` + "`gnuplot`" + ` bodies may use LaTeX labels (epslatex terminal); ` + "`gnuplotonly`" + ` renders straight to SVG.
4. A figure whose block is empty, or written on one line such as ` + "`$$latex,setup,Setup$$`" + `,
   loads its body from ` + "`<assets>/<label>.tex`" + `, here ` + "`<assets>/setup.tex`" + `. Upload such files with the ` + "`upload_block_source`" + ` tool.
5. Numbers are per chapter: the second equation of chapter 3 is (3.2).
6. A block without a closing line is left as text.

## Inline

Text between single ` + "`$`" + ` on one line is an inline equation: ` + "`the area is $\\pi r^2$`" + `.
Every line must contain an even number of ` + "`$`" + `; an odd count fails the build.

References use the same delimiters:

| token | renders as |
|---|---|
| ` + "`$ref:equ:euler$`" + ` | Eq. (1.1) |
| ` + "`$ref:fig:setup$`" + ` | Figure 1.1 |
| ` + "`$ref:bib:knuth84$`" + ` | [3] |

References may point forward to later chapters. An unknown label fails the build.
Citations need a bibliography file configured; they are numbered in .bib order.
`
