package web

var indexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width,initial-scale=1" />
  <title>rikkaport</title>
  <style>
    :root { --bg:#f4f1ea; --ink:#20211f; --card:#fffdf6; --line:#cfc8b8; --accent:#7a3b4f; }
    * { box-sizing: border-box; }
    body { margin:0; font-family: ui-sans-serif, system-ui, sans-serif; background: var(--bg); color: var(--ink); }
    .wrap { max-width: 960px; margin: 0 auto; padding: 24px; }
    h1 { margin: 0 0 8px; font-size: 1.8rem; }
    .subtitle { margin: 0 0 20px; opacity: .75; }
    .grid { display:grid; grid-template-columns: repeat(auto-fit, minmax(280px,1fr)); gap:14px; }
    .card { border:1px solid var(--line); background: var(--card); border-radius: 12px; padding: 14px; }
    label { display:block; margin:8px 0 4px; font-size:.9rem; }
    input, select, button { width:100%; padding:9px; border-radius:8px; border:1px solid var(--line); background:white; font: inherit; }
    button { cursor:pointer; background: var(--accent); color:white; border:none; font-weight:600; }
    pre { background:#17181a; color:#e8ece7; padding:12px; border-radius:8px; overflow:auto; min-height:120px; }
    .row { display:flex; gap:8px; align-items:center; }
    .row input[type=checkbox] { width:auto; }
  </style>
</head>
<body>
  <div class="wrap">
    <h1>rikkaport</h1>
    <p class="subtitle">Convert chat backups between Cherry Studio and RikkaHub</p>

    <div class="grid">
      <div class="card">
        <h3>Inspect / Validate</h3>
        <label>Backup zip</label>
        <input id="inspectFile" type="file" accept=".zip" />
        <div style="height:8px"></div>
        <button onclick="inspect()">Inspect</button>
        <div style="height:8px"></div>
        <button onclick="validate()">Validate</button>
      </div>

      <div class="card">
        <h3>Convert</h3>
        <label>Source zips (hold Ctrl to select several)</label>
        <input id="srcFiles" type="file" accept=".zip" multiple />
        <label>Template zip (optional)</label>
        <input id="tmplFile" type="file" accept=".zip" />
        <label>From</label>
        <select id="from"><option value="auto">auto</option><option value="cherry">cherry</option><option value="rikka">rikka</option></select>
        <label>To</label>
        <select id="to"><option value="rikka">rikka</option><option value="cherry">cherry</option></select>
        <label>Config precedence</label>
        <select id="precedence"><option value="latest">latest</option><option value="first">first</option><option value="target">target</option><option value="source">source</option></select>
        <div class="row"><input id="redact" type="checkbox" /><span>redact secrets</span></div>
        <div style="height:8px"></div>
        <button onclick="convert()">Convert &amp; download</button>
      </div>
    </div>

    <h3>Output</h3>
    <pre id="out"></pre>
  </div>

<script>
const out = document.getElementById('out');
function show(v){ out.textContent = typeof v === 'string' ? v : JSON.stringify(v,null,2); }

async function inspect(){
  const f = document.getElementById('inspectFile').files[0];
  if(!f) return show('select a zip file first');
  const fd = new FormData(); fd.append('file', f);
  const r = await fetch('/api/inspect',{method:'POST',body:fd});
  show(await r.json());
}

async function validate(){
  const f = document.getElementById('inspectFile').files[0];
  if(!f) return show('select a zip file first');
  const fd = new FormData(); fd.append('file', f);
  const r = await fetch('/api/validate',{method:'POST',body:fd});
  show(await r.json());
}

async function convert(){
  const srcs = document.getElementById('srcFiles').files;
  if(!srcs.length) return show('select at least one source zip');
  const fd = new FormData();
  for(const f of srcs) fd.append('file', f);
  const tmpl = document.getElementById('tmplFile').files[0];
  if(tmpl) fd.append('template', tmpl);
  fd.append('from', document.getElementById('from').value);
  fd.append('to', document.getElementById('to').value);
  fd.append('configPrecedence', document.getElementById('precedence').value);
  fd.append('redact', document.getElementById('redact').checked ? 'true' : 'false');

  const r = await fetch('/api/convert',{method:'POST',body:fd});
  if(!r.ok){ return show(await r.json()); }
  const manifest = r.headers.get('X-Rikkaport-Manifest');
  if(manifest){
    try { show(JSON.parse(manifest)); } catch { show(manifest); }
  }
  const blob = await r.blob();
  const a = document.createElement('a');
  a.href = URL.createObjectURL(blob);
  a.download = 'converted.zip';
  a.click();
  URL.revokeObjectURL(a.href);
}
</script>
</body>
</html>`
