package web

import "html/template"

var pageTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="60">
<title>co2mond</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
.reading { font-size: 3em; }
.cal { color: #b00; }
img { max-width: 100%; border: 1px solid #ccc; }
</style>
</head>
<body>
<h1>co2mond</h1>
{{if .Calibrating}}<p class="cal">Calibration in progress</p>{{end}}
{{if .HasReading}}
<p class="reading">{{.Latest.CO2}} ppm</p>
<p>{{printf "%.1f" .Latest.Temperature}} &deg;C &middot; {{printf "%.1f" .Latest.Humidity}} %rh
&middot; {{.Latest.Timestamp.Format "2006-01-02 15:04:05"}}</p>
{{else}}
<p class="reading">&mdash;</p>
<p>Waiting for first measurement.</p>
{{end}}
<p><img src="/plot.png" alt="CO2 over the last {{.Window}}"></p>
<p>
<a href="/api/measurements">window</a> &middot;
<a href="/api/range">range</a> &middot;
<a href="/api/stats">stats</a>
</p>
</body>
</html>
`))
