package cdp

// BindingName is the global function pages use to signal the harness.
const BindingName = "__pagecycleSignal"

// bootstrapScript runs in every new top-level document. It signals load,
// paint settling two animation frames later, and installs tpRecordTime for
// pages that time themselves.
const bootstrapScript = `(function () {
  if (window.top !== window) {
    return;
  }
  var send = function (name, fields) {
    var msg = fields || {};
    msg.name = name;
    try {
      window.` + BindingName + `(JSON.stringify(msg));
    } catch (e) {}
  };
  var paint = function () {
    requestAnimationFrame(function () {
      requestAnimationFrame(function () {
        send("PageLoader:MozAfterPaint");
      });
    });
  };
  window.tpRecordTime = function (time, startTime) {
    send("PageLoader:RecordTime", { time: Number(time), startTime: Number(startTime) });
    paint();
  };
  window.addEventListener("load", function () {
    send("PageLoader:Load");
    paint();
  });
})();`
