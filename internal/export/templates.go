package export

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}} | Atmo</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 760px; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; color: #1f2328; }
    h1 { font-size: 1.6rem; border-bottom: 1px solid #d0d7de; padding-bottom: .4rem; }
    h2 { font-size: 1rem; text-transform: uppercase; letter-spacing: .05em; color: #57606a; margin-top: 2rem; }
    blockquote { border-left: 4px solid #cf222e; margin: 0; padding: 0 1rem; color: #cf222e; }
    pre { padding: 1rem; overflow-x: auto; border-radius: 6px; }
    code { font-size: .9em; }
    table { border-collapse: collapse; }
    th, td { border: 1px solid #d0d7de; padding: .3rem .6rem; }
  </style>
</head>
<body>
{{.Body}}
</body>
</html>
`
