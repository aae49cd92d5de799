package main

// viewerPage polls /logs every two seconds and filters client side.
const viewerPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>pingrelay logs</title>
<style type="text/css">
body {
    font-family: monospace;
    margin: 0;
    height: 100vh;
    display: flex;
    flex-direction: column;
}

#header {
    display: flex;
    justify-content: space-between;
    align-items: center;
    background: #f4f4f4;
    padding: 10px;
    border-bottom: 1px solid #ccc;
}

#filters, #controls {
    display: flex;
    gap: 10px;
    align-items: center;
}

#log {
    flex: 1;
    white-space: pre;
    padding: 10px;
    overflow: auto;
    background: #fff;
}

body.night #log {
    background: #111;
    color: #0f0;
}
</style>
</head>
<body>
<div id="header">
    <div id="filters">
        <label>From <input type="date" id="fromDate"><input type="time" id="fromTime"></label>
        <label>To <input type="date" id="toDate"><input type="time" id="toTime"></label>
        <label>Search <input type="text" id="search"></label>
        <button id="filter">Filter</button>
    </div>
    <div id="controls">
        <button id="pause">Pause</button>
        <button id="night">Night</button>
    </div>
</div>
<div id="log"></div>
<script type="text/javascript">
(function() {
    var timer = null;

    function value(id) {
        return document.getElementById(id).value;
    }

    function pad(n, w) {
        n = String(n);
        while (n.length < (w || 2)) {
            n = "0" + n;
        }
        return n;
    }

    function format(iso) {
        var d = new Date(iso);
        return pad(d.getDate()) + "-" + pad(d.getMonth() + 1) + "-" + d.getFullYear() +
            " " + pad(d.getHours()) + ":" + pad(d.getMinutes()) + ":" + pad(d.getSeconds()) +
            "." + pad(d.getMilliseconds(), 3);
    }

    function load() {
        fetch("/logs").then(function(res) {
            return res.json();
        }).then(function(entries) {
            var from = value("fromDate") ? new Date(value("fromDate") + "T" + (value("fromTime") || "00:00")) : null;
            var to = value("toDate") ? new Date(value("toDate") + "T" + (value("toTime") || "23:59")) : null;
            var search = value("search").toLowerCase();
            var lines = [];
            entries.forEach(function(e) {
                var t = new Date(e.time);
                if (from && t < from) return;
                if (to && t > to) return;
                if (search && e.message.toLowerCase().indexOf(search) < 0) return;
                lines.push("[" + format(e.time) + "] " + e.message);
            });
            document.getElementById("log").textContent = lines.join("\n");
        });
    }

    function start() {
        timer = setInterval(load, 2000);
        document.getElementById("pause").textContent = "Pause";
    }

    document.getElementById("filter").onclick = load;
    document.getElementById("pause").onclick = function() {
        if (timer) {
            clearInterval(timer);
            timer = null;
            this.textContent = "Resume";
        } else {
            start();
        }
    };
    document.getElementById("night").onclick = function() {
        document.body.classList.toggle("night");
    };

    start();
    load();
})();
</script>
</body>
</html>
`
