package api

import "net/http"

// DashboardHandler serves the embedded throughput dashboard page
type DashboardHandler struct{}

// ServeHTTP writes the dashboard page
func (DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

// dashboardHTML contains the throughput dashboard page. It polls
// /api/throughput?visible=true and switches focus through
// PUT /api/throughput/focus.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Broker Console</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
</head>
<body class="bg-gray-100 min-h-screen">
    <div class="container mx-auto px-4 py-8">
        <!-- Header -->
        <div class="mb-8 flex justify-between items-center">
            <h1 class="text-3xl font-bold text-gray-900">Broker Console</h1>
            <div class="flex items-center">
                <div id="statusIndicator" class="w-3 h-3 rounded-full mr-2 bg-gray-400"></div>
                <span id="statusText" class="text-sm font-medium text-gray-600">Loading...</span>
            </div>
        </div>

        <!-- Summary Cards -->
        <div class="grid grid-cols-1 md:grid-cols-3 gap-6 mb-8">
            <div class="bg-white rounded-lg shadow p-6">
                <p class="text-sm font-medium text-gray-600">Stations</p>
                <p id="totalStations" class="text-2xl font-semibold text-gray-900">-</p>
            </div>
            <div class="bg-white rounded-lg shadow p-6">
                <p class="text-sm font-medium text-gray-600">Messages</p>
                <p id="totalMessages" class="text-2xl font-semibold text-gray-900">-</p>
            </div>
            <div class="bg-white rounded-lg shadow p-6">
                <p class="text-sm font-medium text-gray-600">Healthy Pods</p>
                <p id="healthyPods" class="text-2xl font-semibold text-gray-900">-</p>
            </div>
        </div>

        <!-- Throughput -->
        <div class="bg-white rounded-lg shadow p-6">
            <div class="flex justify-between items-center mb-4">
                <h2 class="text-lg font-semibold text-gray-900">Throughput</h2>
                <div class="flex items-center space-x-4">
                    <select id="entitySelect" class="border border-gray-300 rounded px-2 py-1 text-sm"></select>
                    <div class="inline-flex rounded border border-gray-300 overflow-hidden text-sm">
                        <button id="writeBtn" data-direction="write" class="px-3 py-1">Write</button>
                        <button id="readBtn" data-direction="read" class="px-3 py-1">Read</button>
                    </div>
                </div>
            </div>
            <div class="h-80">
                <canvas id="throughputChart"></canvas>
            </div>
        </div>
    </div>

    <script>
        const REFRESH_MS = 5000;

        function convertBytes(bytes) {
            const units = ['B', 'KB', 'MB', 'GB', 'TB'];
            let value = Math.abs(bytes);
            let i = 0;
            while (value >= 1024 && i < units.length - 1) {
                value /= 1024;
                i++;
            }
            return (bytes < 0 ? '-' : '') + (i === 0 ? value.toFixed(0) : value.toFixed(1)) + ' ' + units[i];
        }

        class Dashboard {
            constructor() {
                this.focus = { entity: 'total', direction: 'write' };
                this.entities = [];
                this.timer = null;

                const ctx = document.getElementById('throughputChart').getContext('2d');
                this.chart = new Chart(ctx, {
                    type: 'line',
                    data: { labels: [], datasets: [{
                        label: 'write total',
                        borderColor: '#6557FF',
                        backgroundColor: '#6557FF',
                        borderWidth: 1,
                        pointRadius: 0,
                        tension: 0.2,
                        data: []
                    }] },
                    options: {
                        animation: false,
                        maintainAspectRatio: false,
                        plugins: {
                            legend: { display: false },
                            tooltip: { callbacks: { label: (item) => convertBytes(item.parsed.y) + '/s' } }
                        },
                        scales: {
                            x: { ticks: { maxTicksLimit: 10, autoSkip: true } },
                            y: {
                                beginAtZero: true,
                                grid: { borderDash: [3, 3] },
                                ticks: { maxTicksLimit: 5, callback: (value) => convertBytes(value) + '/s' }
                            }
                        }
                    }
                });

                document.getElementById('entitySelect').addEventListener('change', (e) => {
                    this.setFocus(e.target.value, this.focus.direction);
                });
                for (const id of ['writeBtn', 'readBtn']) {
                    const btn = document.getElementById(id);
                    btn.addEventListener('click', () => this.setFocus(this.focus.entity, btn.dataset.direction));
                }
                document.addEventListener('visibilitychange', () => {
                    if (document.hidden) {
                        this.stop();
                    } else {
                        this.start();
                    }
                });

                this.start();
            }

            start() {
                if (this.timer) return;
                this.refresh();
                this.timer = setInterval(() => this.refresh(), REFRESH_MS);
            }

            stop() {
                clearInterval(this.timer);
                this.timer = null;
            }

            async refresh() {
                try {
                    const resp = await fetch('/api/throughput?visible=true');
                    if (!resp.ok) throw new Error('HTTP ' + resp.status);
                    this.render(await resp.json());
                    this.setStatus(true, 'Live');
                } catch (err) {
                    this.setStatus(false, 'Feed unavailable');
                }
                this.refreshOverview();
            }

            async refreshOverview() {
                try {
                    const resp = await fetch('/api/overview');
                    if (!resp.ok) return;
                    const data = await resp.json();
                    document.getElementById('totalStations').textContent = data.total_stations.toLocaleString();
                    document.getElementById('totalMessages').textContent = data.total_messages.toLocaleString();
                    document.getElementById('healthyPods').textContent = data.healthy_pods + ' / ' + data.desired_pods;
                } catch (err) {
                    // overview is optional
                }
            }

            async setFocus(entity, direction) {
                const resp = await fetch('/api/throughput/focus', {
                    method: 'PUT',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ entity: entity, direction: direction })
                });
                if (resp.ok) {
                    this.refresh();
                }
            }

            render(view) {
                this.focus = view.focus;
                this.renderEntities(view.entities);
                this.renderSegment();

                const series = view.series[0];
                const dataset = this.chart.data.datasets[0];
                if (!series) {
                    this.chart.data.labels = [];
                    dataset.data = [];
                } else {
                    dataset.label = series.label;
                    this.chart.data.labels = series.samples.map(s => new Date(s.timestamp).toLocaleTimeString());
                    dataset.data = series.samples.map(s => s.value);
                }
                this.chart.update();
            }

            renderEntities(entities) {
                const select = document.getElementById('entitySelect');
                if (entities.join('\n') !== this.entities.join('\n')) {
                    this.entities = entities;
                    select.innerHTML = entities.map(e => '<option value="' + e + '">' + e + '</option>').join('');
                }
                select.value = this.focus.entity;
            }

            renderSegment() {
                for (const id of ['writeBtn', 'readBtn']) {
                    const btn = document.getElementById(id);
                    const active = btn.dataset.direction === this.focus.direction;
                    btn.className = 'px-3 py-1 ' + (active ? 'bg-indigo-600 text-white' : 'bg-white text-gray-700');
                }
            }

            setStatus(ok, text) {
                document.getElementById('statusIndicator').className = 'w-3 h-3 rounded-full mr-2 ' + (ok ? 'bg-green-500' : 'bg-red-500');
                document.getElementById('statusText').textContent = text;
            }
        }

        new Dashboard();
    </script>
</body>
</html>
`
