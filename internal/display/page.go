package display

import "net/http"

// PageHandler serves the browser presentation surface: the MJPEG stream
// plus the mode selector and depth offset slider. The widgets only
// produce values; everything they control lives behind /api/params.
func PageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(controlPage))
	}
}

const controlPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>stereocast</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            display: flex;
            flex-direction: column;
            min-height: 100vh;
            font-family: system-ui, -apple-system, sans-serif;
        }
        .stream-container {
            flex: 1;
            display: flex;
            justify-content: center;
            align-items: center;
        }
        img {
            max-width: 100vw;
            max-height: calc(100vh - 64px);
            object-fit: contain;
            display: block;
            background: #000;
        }
        .controls {
            display: flex;
            gap: 16px;
            align-items: center;
            padding: 12px 16px;
            background: rgba(30, 30, 30, 0.95);
            color: #ccc;
            font-size: 14px;
        }
        select {
            background: #2a2a2a;
            color: #eee;
            border: 1px solid #444;
            border-radius: 4px;
            padding: 6px 10px;
        }
        input[type=range] { width: 180px; }
        .offset-value { min-width: 3ch; color: #4ec9b0; }
        .status { margin-left: auto; color: #888; }
        .status.streaming { color: #4ec9b0; }
        .status.disconnected { color: #ce9178; }
    </style>
</head>
<body>
    <div class="stream-container">
        <img src="/stream" alt="stereocast live stream">
    </div>
    <div class="controls">
        <label for="mode">3D Mode:</label>
        <select id="mode">
            <option value="side_by_side_parallel">Side-by-side (parallel)</option>
            <option value="side_by_side_cross_eye">Side-by-side (cross-eye)</option>
            <option value="anaglyph_red_cyan">Anaglyph (red/cyan)</option>
            <option value="anaglyph_green_magenta">Anaglyph (green/magenta)</option>
        </select>
        <label for="offset">Offset:</label>
        <input type="range" id="offset" min="10" max="100" value="50">
        <span class="offset-value" id="offsetValue">50</span>
        <span class="status" id="status">connecting…</span>
    </div>
    <script>
        const modeSelect = document.getElementById('mode');
        const offsetSlider = document.getElementById('offset');
        const offsetValue = document.getElementById('offsetValue');
        const status = document.getElementById('status');

        fetch('/api/params')
            .then(r => r.json())
            .then(p => {
                modeSelect.value = p.mode;
                offsetSlider.value = p.offset;
                offsetValue.textContent = p.offset;
            })
            .catch(console.error);

        function push(update) {
            fetch('/api/params', {
                method: 'PUT',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(update)
            }).catch(console.error);
        }

        modeSelect.addEventListener('change', () => push({ mode: modeSelect.value }));
        offsetSlider.addEventListener('input', () => {
            offsetValue.textContent = offsetSlider.value;
            push({ offset: parseInt(offsetSlider.value, 10) });
        });

        function connectStatus() {
            const proto = location.protocol === 'https:' ? 'wss' : 'ws';
            const ws = new WebSocket(proto + '://' + location.host + '/api/params/stream');
            ws.onmessage = ev => {
                const msg = JSON.parse(ev.data);
                if (msg.state) {
                    status.textContent = msg.state;
                    status.className = 'status ' + msg.state;
                }
                if (msg.params) {
                    modeSelect.value = msg.params.mode;
                    offsetSlider.value = msg.params.offset;
                    offsetValue.textContent = msg.params.offset;
                }
            };
            ws.onclose = () => setTimeout(connectStatus, 2000);
        }
        connectStatus();
    </script>
</body>
</html>`
