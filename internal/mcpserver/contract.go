package mcpserver

// PartFormatContract describes the parts returned by the ingestion tools
// and how an LLM consumer should treat each variant.
const PartFormatContract = `# Quill Part Format

Every ingestion tool returns exactly one part. A part has one of two shapes.

## Text part

` + "```" + `json
{"text": "[TEMPLATE CONTENT (TXT)]\n...verbatim file text..."}
` + "```" + `

- Plain text and HTML uploads (` + "`" + `.txt` + "`" + `, ` + "`" + `.html` + "`" + `, ` + "`" + `.htm` + "`" + `) are passed through verbatim,
  prefixed with a label naming the extension.
- Word documents (` + "`" + `.docx` + "`" + `) are converted to HTML that keeps headings, paragraphs,
  lists and tables. The HTML sits between the markers
  ` + "`" + `[TEMPLATE STRUCTURE (HTML)]` + "`" + ` and ` + "`" + `[TEMPLATE STRUCTURE END]` + "`" + `, followed by a note.
  Use the structure to understand the sections and tables of the template.

## Inline data part

` + "```" + `json
{"inlineData": {"data": "<base64>", "mimeType": "application/pdf"}}
` + "```" + `

- Everything else (PDF, images, unknown types) is sent as standard base64.
- The MIME type is the declared type of the file, else derived from the
  extension (pdf, jpg, jpeg, png), else the configured default
  (` + "`" + `application/pdf` + "`" + ` unless changed).

## Library

- Records live in two categories: ` + "`" + `template` + "`" + ` (files) and ` + "`" + `resource` + "`" + ` (text snippets).
- Listings are newest first. Record ids are opaque; never construct them.
- Deleting a record is permanent.
- ` + "`" + `ingest_file` + "`" + ` accepts a base64 data URI (` + "`" + `data:<mime>;base64,<data>` + "`" + `) or an
  http(s) URL. Pass ` + "`" + `archive: true` + "`" + ` to also store the file as a template.
`
