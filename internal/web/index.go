package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>limitwatch</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            background: #f5f5f5;
            color: #333;
            padding: 24px;
        }
        .container { max-width: 900px; margin: 0 auto; }
        h1 { color: #2c3e50; margin-bottom: 16px; }
        .card {
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 20px;
            margin-bottom: 16px;
        }
        .state { font-size: 1.6em; font-weight: bold; }
        .state.idle { color: #7f8c8d; }
        .state.monitoring { color: #27ae60; }
        .state.limit_reached { color: #c0392b; }
        .state.extended { color: #e67e22; }
        .muted { color: #7f8c8d; font-size: 0.9em; margin-top: 6px; }
        button {
            background: #3498db;
            color: white;
            border: none;
            border-radius: 4px;
            padding: 8px 14px;
            margin-right: 6px;
            cursor: pointer;
        }
        button.danger { background: #c0392b; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 6px; border-bottom: 1px solid #eee; font-size: 0.9em; }
    </style>
</head>
<body>
<div class="container">
    <h1>limitwatch</h1>

    <div class="card">
        <div id="state" class="state idle">idle</div>
        <div id="detail" class="muted"></div>
    </div>

    <div class="card">
        <button onclick="post('/api/start')">Start</button>
        <button class="danger" onclick="post('/api/stop')">Stop</button>
        <button onclick="post('/api/simulate')">Simulate</button>
        <button onclick="post('/api/respond', {action: 'acknowledge'})">OK</button>
        <button onclick="post('/api/respond', {action: 'extend'})">Extend</button>
    </div>

    <div class="card">
        <table>
            <thead><tr><th>Time</th><th>Event</th><th>State</th><th>Reason</th></tr></thead>
            <tbody id="log"></tbody>
        </table>
    </div>
</div>
<script>
function render(st) {
    const el = document.getElementById('state');
    el.textContent = st.state;
    el.className = 'state ' + st.state;
    let detail = '';
    if (st.session_id) detail += 'session ' + st.session_id + ' | triggers ' + st.triggers;
    if (st.remaining) detail += ' | ' + st.remaining;
    if (st.last_signal) detail += ' | ' + st.last_signal.reason;
    document.getElementById('detail').textContent = detail;
}

function refresh() {
    fetch('/api/status').then(r => r.json()).then(render);
}

function post(path, body) {
    fetch(path, {
        method: 'POST',
        headers: {'Content-Type': 'application/json'},
        body: JSON.stringify(body || {}),
    }).then(refresh);
}

function logTransition(t) {
    const row = document.createElement('tr');
    const reason = t.signal ? t.signal.reason : '';
    [new Date(t.at).toLocaleTimeString(), t.event, t.from + ' -> ' + t.to, reason].forEach(v => {
        const td = document.createElement('td');
        td.textContent = v;
        row.appendChild(td);
    });
    document.getElementById('log').prepend(row);
}

function connect() {
    const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
    const ws = new WebSocket(proto + '//' + location.host + '/ws');
    ws.onmessage = e => {
        const msg = JSON.parse(e.data);
        if (msg.type === 'status') render(msg.payload);
        if (msg.type === 'transition') { logTransition(msg.payload); refresh(); }
    };
    ws.onclose = () => setTimeout(connect, 2000);
}

refresh();
connect();
</script>
</body>
</html>
`
