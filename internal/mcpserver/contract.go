package mcpserver

// VisitFormat describes the visit records returned by the tools.
const VisitFormat = `# Waypoint Visit Format

A visit records that a URL was mentioned somewhere in the user's notes.

## Fields

` + "```" + `json
{
  "url": "https://example.org/paper",   // URL, or a bare DOI / ISBN / ISSN
  "dt": "2020-01-01T00:00:00Z",          // when the mention was made
  "context": "Heading   :tag:\nbody",    // surrounding text, may be empty
  "locator": {
    "title": "/notes/a.org:12",         // display name of the origin
    "href": "editor:///notes/a.org:12"  // deep link back to the origin
  },
  "source": "orgroam"                    // orgroam, bib or joplin
}
` + "```" + `

## Sources

1. **orgroam** visits come from org-roam notes. A node's ` + "`" + `ROAM_REFS` + "`" + ` cite key
   is resolved against the bibliography and yields one visit per isbn, issn, doi and
   url field. Links in node bodies yield visits too. The locator is ` + "`" + `path:line` + "`" + `
   of the node (line is omitted for the file-level node).
2. **bib** visits come from BibTeX entries. The locator opens the entry in the
   reference manager (` + "`" + `zotero://select/items/@[key]` + "`" + `).
3. **joplin** visits come from Joplin notes and web clippings. Highlighted passages of
   a clipping become one visit each. The locator is
   ` + "`" + `joplin://x-callback-url/openNote?id=...` + "`" + `.

## Times

` + "`" + `dt` + "`" + ` is the node's creation date when the note records one, the file's
modification time otherwise. Bibliography entries use ` + "`" + `urldate` + "`" + `, then
` + "`" + `date` + "`" + `, then ` + "`" + `year` + "`" + `/` + "`" + `month` + "`" + `.
`
